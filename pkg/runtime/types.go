package runtime

import (
	"time"

	"github.com/docker/go-connections/nat"
)

// ContainerConfig is the engine-side configuration of a container.
type ContainerConfig struct {
	Image        string            `json:"Image"`
	Cmd          []string          `json:"Cmd,omitempty"`
	Env          []string          `json:"Env,omitempty"`
	ExposedPorts nat.PortSet       `json:"ExposedPorts,omitempty"`
	Tty          bool              `json:"Tty,omitempty"`
	OpenStdin    bool              `json:"OpenStdin,omitempty"`
	AttachStdin  bool              `json:"AttachStdin,omitempty"`
	AttachStdout bool              `json:"AttachStdout,omitempty"`
	AttachStderr bool              `json:"AttachStderr,omitempty"`
	Labels       map[string]string `json:"Labels,omitempty"`
}

// HostConfig is the host-side configuration of a container.
type HostConfig struct {
	Binds        []string    `json:"Binds,omitempty"`
	PortBindings nat.PortMap `json:"PortBindings,omitempty"`
	Memory       int64       `json:"Memory,omitempty"`
	CPUCount     int64       `json:"CpuCount,omitempty"`
	NanoCPUs     int64       `json:"NanoCpus,omitempty"`
	NetworkMode  string      `json:"NetworkMode,omitempty"`
}

// CreateContainerOptions specify parameters to CreateContainer.
type CreateContainerOptions struct {
	Name       string
	Config     *ContainerConfig
	HostConfig *HostConfig
}

// CreatedContainer is the engine's answer to a create request.
type CreatedContainer struct {
	ID       string   `json:"Id"`
	Warnings []string `json:"Warnings,omitempty"`
}

// ContainerSummary is one entry of a container listing.
type ContainerSummary struct {
	ID     string   `json:"Id"`
	Names  []string `json:"Names"`
	Image  string   `json:"Image"`
	State  string   `json:"State"`
	Status string   `json:"Status"`
}

// ContainerState is the runtime state portion of an inspect result.
type ContainerState struct {
	Status     string `json:"Status"`
	Running    bool   `json:"Running"`
	Paused     bool   `json:"Paused"`
	Restarting bool   `json:"Restarting"`
	ExitCode   int    `json:"ExitCode"`
	StartedAt  string `json:"StartedAt"`
	FinishedAt string `json:"FinishedAt"`
}

// ContainerDetails is an inspect result.
type ContainerDetails struct {
	ID         string           `json:"Id"`
	Name       string           `json:"Name"`
	Created    string           `json:"Created"`
	State      *ContainerState  `json:"State"`
	Config     *ContainerConfig `json:"Config"`
	HostConfig *HostConfig      `json:"HostConfig"`
}

// IsRunning reports whether the inspected container is currently running.
func (d *ContainerDetails) IsRunning() bool {
	return d.State != nil && d.State.Running
}

// UpdateConfig carries the mutable resource limits of a live container.
type UpdateConfig struct {
	Memory     int64 `json:"Memory,omitempty"`
	MemorySwap int64 `json:"MemorySwap,omitempty"`
	NanoCPUs   int64 `json:"NanoCpus,omitempty"`
}

// VersionInfo describes the engine, as reported by /version.
type VersionInfo struct {
	Version       string `json:"Version"`
	APIVersion    string `json:"ApiVersion"`
	MinAPIVersion string `json:"MinAPIVersion,omitempty"`
	GitCommit     string `json:"GitCommit,omitempty"`
	GoVersion     string `json:"GoVersion,omitempty"`
	Os            string `json:"Os,omitempty"`
	Arch          string `json:"Arch,omitempty"`
	KernelVersion string `json:"KernelVersion,omitempty"`
}

// Platform renders the engine's os/arch pair.
func (v *VersionInfo) Platform() string {
	return v.Os + "/" + v.Arch
}

// LogsOptions control a container log fetch.
type LogsOptions struct {
	Follow     bool
	Stdout     bool
	Stderr     bool
	Timestamps bool
	Tail       string
}

// ExecOptions specify parameters to ExecCreate.
type ExecOptions struct {
	Cmd          []string `json:"Cmd"`
	AttachStdin  bool     `json:"AttachStdin,omitempty"`
	AttachStdout bool     `json:"AttachStdout,omitempty"`
	AttachStderr bool     `json:"AttachStderr,omitempty"`
	Tty          bool     `json:"Tty,omitempty"`
}

// ExecCreated is the engine's answer to an exec create request.
type ExecCreated struct {
	ID string `json:"Id"`
}

// ExecStartOptions specify parameters to ExecStart.
type ExecStartOptions struct {
	Detach bool `json:"Detach"`
	Tty    bool `json:"Tty,omitempty"`
}

// ExecInspectResult describes a created exec instance.
type ExecInspectResult struct {
	ID       string `json:"ID"`
	Running  bool   `json:"Running"`
	ExitCode int    `json:"ExitCode"`
}

// AttachOptions control a container attach.
type AttachOptions struct {
	Stream bool
	Stdin  bool
	Stdout bool
	Stderr bool
}

// NetworkStats is a stats entry for network stats.
type NetworkStats struct {
	RxBytes   uint64 `json:"rx_bytes,omitempty"`
	RxPackets uint64 `json:"rx_packets,omitempty"`
	RxErrors  uint64 `json:"rx_errors,omitempty"`
	RxDropped uint64 `json:"rx_dropped,omitempty"`
	TxBytes   uint64 `json:"tx_bytes,omitempty"`
	TxPackets uint64 `json:"tx_packets,omitempty"`
	TxErrors  uint64 `json:"tx_errors,omitempty"`
	TxDropped uint64 `json:"tx_dropped,omitempty"`
}

// CPUUsage is the cpu usage portion of a stats snapshot.
type CPUUsage struct {
	TotalUsage        uint64   `json:"total_usage,omitempty"`
	PercpuUsage       []uint64 `json:"percpu_usage,omitempty"`
	UsageInUsermode   uint64   `json:"usage_in_usermode,omitempty"`
	UsageInKernelmode uint64   `json:"usage_in_kernelmode,omitempty"`
}

// CPUStats is a stats entry for cpu stats.
type CPUStats struct {
	CPUUsage       CPUUsage `json:"cpu_usage,omitempty"`
	SystemCPUUsage uint64   `json:"system_cpu_usage,omitempty"`
	OnlineCPUs     uint32   `json:"online_cpus,omitempty"`
}

// MemoryStats is a stats entry for memory stats.
type MemoryStats struct {
	Usage    uint64            `json:"usage,omitempty"`
	MaxUsage uint64            `json:"max_usage,omitempty"`
	Limit    uint64            `json:"limit,omitempty"`
	Stats    map[string]uint64 `json:"stats,omitempty"`
}

// Stats represents a container statistics snapshot, as returned by
// /containers/<id>/stats.
type Stats struct {
	Read      time.Time `json:"read,omitempty"`
	PreRead   time.Time `json:"preread,omitempty"`
	NumProcs  uint32    `json:"num_procs,omitempty"`
	PidsStats struct {
		Current uint64 `json:"current,omitempty"`
	} `json:"pids_stats,omitempty"`
	Networks    map[string]NetworkStats `json:"networks,omitempty"`
	MemoryStats MemoryStats             `json:"memory_stats,omitempty"`
	CPUStats    CPUStats                `json:"cpu_stats,omitempty"`
	PreCPUStats CPUStats                `json:"precpu_stats,omitempty"`
}
