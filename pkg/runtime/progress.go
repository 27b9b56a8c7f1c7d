package runtime

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/go-errors/errors"
)

// PullProgress is one line of an image pull progress stream.
type PullProgress struct {
	Status   string `json:"status,omitempty"`
	ID       string `json:"id,omitempty"`
	Progress string `json:"progress,omitempty"`
	Error    string `json:"error,omitempty"`
}

// FollowProgress drains a pull progress stream, invoking onProgress for
// each decoded line (nil is allowed), and returns the full sequence. A
// pull that the engine reports as failed mid-stream surfaces as an
// error even though the HTTP exchange itself succeeded.
func FollowProgress(r io.Reader, onProgress func(PullProgress)) ([]PullProgress, error) {
	var records []PullProgress
	var lastErr string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record PullProgress
		if err := json.Unmarshal(line, &record); err != nil {
			// Malformed lines are dropped; the engine occasionally flushes
			// partial writes under load.
			continue
		}
		if record.Error != "" {
			lastErr = record.Error
		}
		records = append(records, record)
		if onProgress != nil {
			onProgress(record)
		}
	}

	if err := scanner.Err(); err != nil {
		return records, err
	}
	if lastErr != "" {
		return records, errors.Errorf("pull failed: %s", lastErr)
	}
	return records, nil
}
