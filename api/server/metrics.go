package server

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// NodeMetrics holds process and vault health figures.
type NodeMetrics struct {
	UptimeSeconds  int64   `json:"uptime_seconds"`
	EventHeight    uint64  `json:"event_height"`
	Initialized    bool    `json:"initialized"`
	CPULoadPercent float64 `json:"cpu_load_percent"`
	MemoryUsedMB   float64 `json:"memory_used_mb"`
	DiskFreeMB     float64 `json:"disk_free_mb"`
}

// GetNodeMetrics samples host load and the journal head. Host figures that
// cannot be read are left at zero.
func (s *Server) GetNodeMetrics() NodeMetrics {
	nm := NodeMetrics{UptimeSeconds: int64(time.Since(s.started).Seconds())}

	if st, err := s.vault.Status(); err == nil {
		nm.Initialized = st.Initialized
		nm.EventHeight = st.HeadSeq
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		nm.CPULoadPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		nm.MemoryUsedMB = float64(vm.Used) / (1024 * 1024)
	}
	if du, err := disk.Usage("/"); err == nil {
		nm.DiskFreeMB = float64(du.Free) / (1024 * 1024)
	}
	return nm
}
