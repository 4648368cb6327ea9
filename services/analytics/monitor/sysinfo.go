// Copyright (C) 2025 Clinica Bonsana (jfbm74)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package monitor watches the health of the analytics service: stuck
// jobs, recent error rates, and host resource pressure.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/jfbm74/glpi-analytics/services/analytics/datatypes"
)

// Sampler reads host resource usage. Swapped for a stub in tests.
type Sampler interface {
	Sample(ctx context.Context) (datatypes.SystemSnapshot, error)
}

// HostSampler reads CPU, memory, and disk usage from the host.
type HostSampler struct {
	// DiskPath is the mount point measured for disk pressure.
	DiskPath string
}

// NewHostSampler returns a sampler measuring the root filesystem.
func NewHostSampler() *HostSampler {
	return &HostSampler{DiskPath: "/"}
}

// Sample reads current host usage. The CPU reading is instantaneous
// (interval zero) so the probe never blocks the health endpoint.
func (s *HostSampler) Sample(ctx context.Context) (datatypes.SystemSnapshot, error) {
	snapshot := datatypes.SystemSnapshot{Timestamp: time.Now().UTC()}

	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return snapshot, fmt.Errorf("sample cpu: %w", err)
	}
	if len(cpuPercents) > 0 {
		snapshot.CPUPercent = cpuPercents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return snapshot, fmt.Errorf("sample memory: %w", err)
	}
	snapshot.MemoryPercent = vm.UsedPercent

	usage, err := disk.UsageWithContext(ctx, s.DiskPath)
	if err != nil {
		return snapshot, fmt.Errorf("sample disk at %q: %w", s.DiskPath, err)
	}
	snapshot.DiskPercent = usage.UsedPercent

	return snapshot, nil
}
