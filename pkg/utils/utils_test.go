package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSplitLines is a function.
func TestSplitLines(t *testing.T) {
	type scenario struct {
		multilineString string
		expected        []string
	}

	scenarios := []scenario{
		{
			"",
			[]string{},
		},
		{
			"\n",
			[]string{},
		},
		{
			"hello world !\nhello universe !\n",
			[]string{
				"hello world !",
				"hello universe !",
			},
		},
		{
			"hello\r\nworld\r\n",
			[]string{
				"hello",
				"world",
			},
		},
	}

	for _, s := range scenarios {
		assert.EqualValues(t, s.expected, SplitLines(s.multilineString))
	}
}

// TestFormatUptime is a function.
func TestFormatUptime(t *testing.T) {
	type scenario struct {
		seconds  uint64
		expected string
	}

	scenarios := []scenario{
		{
			0,
			"0m",
		},
		{
			59,
			"0m",
		},
		{
			61,
			"1m",
		},
		{
			3600,
			"1h 0m",
		},
		{
			86400 + 2*3600 + 3*60,
			"1d 2h 3m",
		},
		{
			86400 + 3*60,
			"1d 0h 3m",
		},
	}

	for _, s := range scenarios {
		assert.Equal(t, s.expected, FormatUptime(s.seconds))
	}
}

// TestDirSize is a function.
func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0o644))
	assert.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 50), 0o644))

	size, err := DirSize(dir)
	assert.NoError(t, err)
	assert.EqualValues(t, 150, size)

	size, err = DirSize(filepath.Join(dir, "missing"))
	assert.NoError(t, err)
	assert.EqualValues(t, 0, size)
}
