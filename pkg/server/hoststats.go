package server

import (
	"context"

	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/kswings/kswingsd/pkg/runtime"
	"github.com/kswings/kswingsd/pkg/utils"
)

type totalHostStats struct {
	MemoryTotal       uint64  `json:"memory_total"`
	MemoryUsed        uint64  `json:"memory_used"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	CPUUsedPercent    float64 `json:"cpu_used_percent"`
	CPUCores          int     `json:"cpu_cores"`
}

type hostStatsPayload struct {
	TotalHostStats        totalHostStats `json:"total_host_stats"`
	OnlineContainersCount int            `json:"online_containers_count"`
	Uptime                string         `json:"uptime"`
}

// hostStats aggregates machine-level memory/cpu/uptime with the count
// of running containers.
func (s *Server) hostStats(ctx context.Context) (*hostStatsPayload, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, err
	}
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, err
	}

	uptimeSeconds, err := host.UptimeWithContext(ctx)
	if err != nil {
		return nil, err
	}

	containers, err := s.Runtime.ListContainers(ctx, true)
	if err != nil {
		return nil, err
	}
	online := lo.CountBy(containers, func(c runtime.ContainerSummary) bool {
		return c.State == "running"
	})

	payload := &hostStatsPayload{
		TotalHostStats: totalHostStats{
			MemoryTotal:       vm.Total,
			MemoryUsed:        vm.Used,
			MemoryUsedPercent: vm.UsedPercent,
			CPUCores:          cores,
		},
		OnlineContainersCount: online,
		Uptime:                utils.FormatUptime(uptimeSeconds),
	}
	if len(percents) > 0 {
		payload.TotalHostStats.CPUUsedPercent = percents[0]
	}
	return payload, nil
}
