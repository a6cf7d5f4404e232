package agent

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// systemInfo gathers the heartbeat payload. Probes that fail are left out.
func systemInfo(ctx context.Context) map[string]interface{} {
	info := map[string]interface{}{
		"os":        runtime.GOOS,
		"arch":      runtime.GOARCH,
		"timestamp": time.Now().Format(time.RFC3339),
	}

	if h, err := host.InfoWithContext(ctx); err == nil {
		info["hostname"] = h.Hostname
		info["os"] = fmt.Sprintf("%s %s", h.Platform, h.PlatformVersion)
		info["kernel"] = h.KernelVersion
		info["uptime"] = h.Uptime
	}
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		info["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info["memory_percent"] = vm.UsedPercent
	}
	return info
}

type processRow struct {
	pid      int32
	name     string
	user     string
	memoryKB uint64
	cpu      float64
	status   string
}

// processListCSV renders running processes as CSV with a header row, ordered
// by pid.
func processListCSV(ctx context.Context) (string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list processes: %w", err)
	}

	rows := make([]processRow, 0, len(procs))
	for _, p := range procs {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		row := processRow{pid: p.Pid}
		row.name, _ = p.NameWithContext(ctx)
		row.user, _ = p.UsernameWithContext(ctx)
		if m, err := p.MemoryInfoWithContext(ctx); err == nil && m != nil {
			row.memoryKB = m.RSS / 1024
		}
		row.cpu, _ = p.CPUPercentWithContext(ctx)
		if status, err := p.StatusWithContext(ctx); err == nil && len(status) > 0 {
			row.status = status[0]
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].pid < rows[j].pid })

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"name", "pid", "user", "memory_kb", "cpu_percent", "status"})
	for _, r := range rows {
		_ = w.Write([]string{
			r.name,
			strconv.Itoa(int(r.pid)),
			r.user,
			strconv.FormatUint(r.memoryKB, 10),
			strconv.FormatFloat(r.cpu, 'f', 1, 64),
			r.status,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to write process list: %w", err)
	}
	return buf.String(), nil
}

func killPID(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return fmt.Errorf("process %d not found: %w", pid, err)
	}
	if err := p.KillWithContext(ctx); err != nil {
		return fmt.Errorf("failed to kill process %d: %w", pid, err)
	}
	return nil
}
