package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// SysHealth represents real-time system metrics.
type SysHealth struct {
	AllocMB      uint64
	TotalAllocMB uint64
	SysMB        uint64
	NumGC        uint32
	Goroutines   int
	DataDiskSize string
}

// GetSysHealth collects real-time health data. dataPaths are summed for
// the disk figure; missing paths count as empty.
func GetSysHealth(dataPaths ...string) SysHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var size int64
	for _, p := range dataPaths {
		size += dirSize(p)
	}

	return SysHealth{
		AllocMB:      m.Alloc / 1024 / 1024,
		TotalAllocMB: m.TotalAlloc / 1024 / 1024,
		SysMB:        m.Sys / 1024 / 1024,
		NumGC:        m.NumGC,
		Goroutines:   runtime.NumGoroutine(),
		DataDiskSize: humanSize(size),
	}
}

// Report renders health and recent usage as plain text for admins.
func Report(h SysHealth, usage []DailyUsage) string {
	var b strings.Builder
	b.WriteString("System\n")
	fmt.Fprintf(&b, "  memory: %d MB alloc, %d MB sys, %d GC cycles\n", h.AllocMB, h.SysMB, h.NumGC)
	fmt.Fprintf(&b, "  goroutines: %d\n", h.Goroutines)
	fmt.Fprintf(&b, "  data on disk: %s\n", h.DataDiskSize)

	b.WriteString("\nUsage\n")
	if len(usage) == 0 {
		b.WriteString("  no generations recorded\n")
		return b.String()
	}
	for _, u := range usage {
		fmt.Fprintf(&b, "  %s: %d runs (%d failed), %d prompt / %d completion tokens\n",
			u.Date, u.TotalExecution, u.Failures, u.TotalPrompt, u.TotalCompletion)
	}
	return b.String()
}

func dirSize(path string) int64 {
	var size int64
	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}

func humanSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
