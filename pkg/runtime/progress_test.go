package runtime

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFollowProgress(t *testing.T) {
	type scenario struct {
		name     string
		input    string
		expected int
		ok       bool
	}

	scenarios := []scenario{
		{
			"empty stream",
			"",
			0,
			true,
		},
		{
			"successful pull",
			`{"status":"Pulling from library/alpine","id":"latest"}
{"status":"Downloading","id":"abc","progress":"[=>   ] 1MB/5MB"}
{"status":"Pull complete","id":"abc"}
`,
			3,
			true,
		},
		{
			"error line fails the pull",
			`{"status":"Pulling from library/alpine"}
{"error":"manifest unknown"}
`,
			2,
			false,
		},
		{
			"malformed lines are skipped",
			"{\"status\":\"ok\"}\nnot json at all\n{\"status\":\"done\"}\n",
			2,
			true,
		},
		{
			"blank lines are skipped",
			"\n\n{\"status\":\"ok\"}\n\n",
			1,
			true,
		},
	}

	for _, s := range scenarios {
		t.Run(s.name, func(t *testing.T) {
			var seen int
			records, err := FollowProgress(strings.NewReader(s.input), func(PullProgress) { seen++ })
			if s.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
			assert.Len(t, records, s.expected)
			assert.Equal(t, s.expected, seen)
		})
	}
}

func TestSplitImageRef(t *testing.T) {
	type scenario struct {
		ref           string
		expectedImage string
		expectedTag   string
	}

	scenarios := []scenario{
		{"alpine", "alpine", "latest"},
		{"alpine:3.20", "alpine", "3.20"},
		{"library/redis:7", "library/redis", "7"},
		{"registry.local:5000/app", "registry.local:5000/app", "latest"},
		{"registry.local:5000/app:v2", "registry.local:5000/app", "v2"},
	}

	for _, s := range scenarios {
		t.Run(s.ref, func(t *testing.T) {
			image, tag := splitImageRef(s.ref)
			assert.Equal(t, s.expectedImage, image)
			assert.Equal(t, s.expectedTag, tag)
		})
	}
}
