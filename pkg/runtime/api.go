package runtime

import (
	"context"
	"io"
)

// API is the surface of the engine client that the rest of the daemon
// consumes. Tests substitute their own implementations.
type API interface {
	Ping(ctx context.Context) error
	Version(ctx context.Context) (*VersionInfo, error)
	Info(ctx context.Context) (map[string]any, error)
	APIVersion() string

	ListContainers(ctx context.Context, all bool) ([]ContainerSummary, error)
	CreateContainer(ctx context.Context, opts CreateContainerOptions) (*CreatedContainer, error)
	InspectContainer(ctx context.Context, id string) (*ContainerDetails, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string, timeout *int) error
	RestartContainer(ctx context.Context, id string) error
	KillContainer(ctx context.Context, id string, signal string) error
	PauseContainer(ctx context.Context, id string) error
	UnpauseContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string, force bool) error
	UpdateContainer(ctx context.Context, id string, update UpdateConfig) error

	PullImage(ctx context.Context, ref string) (io.ReadCloser, error)
	ContainerLogs(ctx context.Context, id string, opts LogsOptions) (io.ReadCloser, error)
	ContainerStats(ctx context.Context, id string) (*Stats, error)
	ContainerStatsStream(ctx context.Context, id string) (io.ReadCloser, error)
	ContainerAttach(ctx context.Context, id string, opts AttachOptions) (*HijackedResponse, error)

	ExecCreate(ctx context.Context, id string, opts ExecOptions) (*ExecCreated, error)
	ExecStart(ctx context.Context, execID string, opts ExecStartOptions) error
	ExecAttach(ctx context.Context, execID string, opts ExecStartOptions) (*HijackedResponse, error)
	ExecInspect(ctx context.Context, execID string) (*ExecInspectResult, error)

	Close() error
}

var _ API = (*Client)(nil)
