// Package collector stands in for the platform metrics collection library
// spec §1 treats as an opaque, out-of-scope dependency: something that
// returns a structured sample of host and container statistics. It reads
// /proc directly and shells out to docker rather than wrapping a
// production telemetry SDK, since no such SDK is part of this module's
// dependency surface.
package collector

import (
	"bufio"
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cuemby/infractl/pkg/subprocess"
	"github.com/cuemby/infractl/pkg/types"
)

const dockerListTimeout = 3 * time.Second

// Collector samples host CPU/memory/load/disk stats and, best-effort,
// the running container count. It carries the previous /proc/stat reading
// so CPU usage can be derived from the delta between calls.
type Collector struct {
	mu      sync.Mutex
	lastCPU cpuTimes
}

// New builds an empty Collector. The first Sample call always reports
// zero CPU usage, since there is no prior reading to diff against.
func New() *Collector {
	return &Collector{}
}

// Sample collects one structured reading tagged with agentName. A failed
// individual stat leaves that field at its zero value rather than failing
// the whole sample, since a partial reading still has value.
func (c *Collector) Sample(ctx context.Context, agentName string) types.MetricSample {
	now := time.Now().UTC()
	sample := types.MetricSample{AgentName: agentName, CollectedAt: now}

	if l1, l5, l15, err := loadAvg(); err == nil {
		sample.Load1, sample.Load5, sample.Load15 = l1, l5, l15
	}
	if used, total, pct, err := memInfo(); err == nil {
		sample.MemoryUsed, sample.MemoryTotal, sample.MemoryUsagePercent = used, total, pct
	}
	sample.CPUUsage = c.cpuPercent()
	if pct, err := diskUsagePercent("/"); err == nil {
		sample.DiskUsagePercent = &pct
	}
	if n, err := dockerContainerCount(ctx); err == nil {
		sample.ContainerCount = &n
	}
	return sample
}

type cpuTimes struct {
	idle, total uint64
}

// cpuPercent returns the percentage of CPU time spent non-idle since the
// previous call.
func (c *Collector) cpuPercent() float64 {
	cur, err := readCPUTimes()
	if err != nil {
		return 0
	}

	c.mu.Lock()
	prev := c.lastCPU
	c.lastCPU = cur
	c.mu.Unlock()

	if prev.total == 0 || cur.total <= prev.total {
		return 0
	}
	totalDelta := cur.total - prev.total
	idleDelta := cur.idle - prev.idle
	if idleDelta > totalDelta {
		return 0
	}
	return float64(totalDelta-idleDelta) / float64(totalDelta) * 100
}

// readCPUTimes parses the aggregate "cpu" line of /proc/stat: user, nice,
// system, idle, iowait, irq, softirq, steal, ...
func readCPUTimes() (cpuTimes, error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return cpuTimes{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return cpuTimes{}, errors.New("collector: empty /proc/stat")
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 5 || fields[0] != "cpu" {
		return cpuTimes{}, errors.New("collector: unexpected /proc/stat format")
	}

	var t cpuTimes
	for i, raw := range fields[1:] {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			continue
		}
		t.total += v
		if i == 3 {
			t.idle = v
		}
	}
	return t, nil
}

// loadAvg parses the three load-average fields of /proc/loadavg.
func loadAvg() (l1, l5, l15 float64, err error) {
	raw, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, 0, 0, err
	}
	fields := strings.Fields(string(raw))
	if len(fields) < 3 {
		return 0, 0, 0, errors.New("collector: unexpected /proc/loadavg format")
	}
	if l1, err = strconv.ParseFloat(fields[0], 64); err != nil {
		return 0, 0, 0, err
	}
	if l5, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return 0, 0, 0, err
	}
	if l15, err = strconv.ParseFloat(fields[2], 64); err != nil {
		return 0, 0, 0, err
	}
	return l1, l5, l15, nil
}

// memInfo derives used/total bytes and used-percent from /proc/meminfo's
// MemTotal and MemAvailable fields (both reported in kB).
func memInfo() (used, total int64, usedPercent float64, err error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0, 0, err
	}
	defer f.Close()

	var totalKB, availKB int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		switch strings.TrimSuffix(fields[0], ":") {
		case "MemTotal":
			totalKB, _ = strconv.ParseInt(fields[1], 10, 64)
		case "MemAvailable":
			availKB, _ = strconv.ParseInt(fields[1], 10, 64)
		}
	}
	if totalKB == 0 {
		return 0, 0, 0, errors.New("collector: MemTotal not found in /proc/meminfo")
	}
	totalBytes := totalKB * 1024
	usedBytes := (totalKB - availKB) * 1024
	return usedBytes, totalBytes, float64(usedBytes) / float64(totalBytes) * 100, nil
}

// diskUsagePercent reports the used-percentage of the filesystem mounted
// at path.
func diskUsagePercent(path string) (float64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)
	if total == 0 {
		return 0, errors.New("collector: zero-size filesystem")
	}
	return float64(total-free) / float64(total) * 100, nil
}

// dockerContainerCount runs `docker ps -q` and counts the lines returned.
// Absence of a docker daemon is reported as an error so callers can omit
// the docker reading rather than report a false zero.
func dockerContainerCount(ctx context.Context) (int, error) {
	res, err := subprocess.Run(ctx, subprocess.Request{
		Name:    "docker",
		Args:    []string{"ps", "-q"},
		Timeout: dockerListTimeout,
	})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, line := range strings.Split(res.Output, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n, nil
}
