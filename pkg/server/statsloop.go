package server

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/docker/go-units"

	"github.com/kswings/kswingsd/pkg/runtime"
	"github.com/kswings/kswingsd/pkg/utils"
)

// statsSample is what a stats session emits every tick: the engine's
// snapshot plus the volume quota fields.
type statsSample struct {
	*runtime.Stats
	VolumeSizeMiB   int64 `json:"volumeSizeMiB"`
	DiskLimitMiB    int64 `json:"diskLimitMiB"`
	StorageExceeded bool  `json:"storageExceeded"`
}

var statsFailure = []byte(`{"error":"Failed to fetch stats"}`)

// runStats drives a stats session: one sample per tick until the
// channel closes. A breached disk quota stops the container once per
// session; a failed sample reports the failure but keeps ticking.
func (s *session) runStats(ctx context.Context) {
	diskLimit := s.diskLimit()
	volumePath := filepath.Join(s.srv.Config.VolumesPath(), s.volumeID)

	ticker := time.NewTicker(s.srv.statsInterval())
	defer ticker.Stop()

	autoStopped := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sample, err := s.sample(ctx, volumePath, diskLimit)
		if err != nil {
			s.log.WithError(err).Warn("stats sample failed")
			s.queue(statsFailure)
			continue
		}

		data, err := json.Marshal(sample)
		if err != nil {
			s.queue(statsFailure)
			continue
		}
		s.queue(data)

		if sample.StorageExceeded && !autoStopped {
			if s.quotaStop(ctx) {
				autoStopped = true
			}
		}
	}
}

func (s *session) sample(ctx context.Context, volumePath string, diskLimit int64) (*statsSample, error) {
	stats, err := s.srv.Runtime.ContainerStats(ctx, s.containerID)
	if err != nil {
		return nil, err
	}

	size, err := utils.DirSize(volumePath)
	if err != nil {
		return nil, err
	}
	sizeMiB := size / units.MiB

	return &statsSample{
		Stats:           stats,
		VolumeSizeMiB:   sizeMiB,
		DiskLimitMiB:    diskLimit,
		StorageExceeded: diskLimit > 0 && sizeMiB >= diskLimit,
	}, nil
}

// quotaStop stops the container over its disk quota. True means the
// stop landed and the latch should be set; a container that is not
// running, or a stop that failed, keeps the latch open so the next
// tick tries again.
func (s *session) quotaStop(ctx context.Context) bool {
	details, err := s.srv.Runtime.InspectContainer(ctx, s.containerID)
	if err != nil || !details.IsRunning() {
		return false
	}

	s.log.Warnf("disk quota exceeded, stopping container %s", s.containerID)
	if err := s.srv.Runtime.StopContainer(ctx, s.containerID, nil); err != nil {
		s.log.WithError(err).Error("quota stop failed")
		return false
	}
	return true
}

// diskLimit reads the volume's quota from the state store; anything
// unreadable counts as unlimited.
func (s *session) diskLimit() int64 {
	if s.volumeID == "" {
		return 0
	}
	record, ok, err := s.srv.Store.Get(s.volumeID)
	if err != nil || !ok {
		return 0
	}
	return record.DiskLimit
}
