package hardware

import (
	"errors"
	"os"

	log "github.com/sirupsen/logrus"
)

// cgroupPaths is one cgroup layout's limit, usage and stat files.
type cgroupPaths struct {
	Limit string
	Usage string
	Stat  string
}

var (
	cgroupV2 = cgroupPaths{
		Limit: "/sys/fs/cgroup/memory.max",
		Usage: "/sys/fs/cgroup/memory.current",
		Stat:  "/sys/fs/cgroup/memory.stat",
	}
	cgroupV1 = cgroupPaths{
		Limit: "/sys/fs/cgroup/memory/memory.limit_in_bytes",
		Usage: "/sys/fs/cgroup/memory/memory.usage_in_bytes",
		Stat:  "/sys/fs/cgroup/memory/memory.stat",
	}
)

type HostMemoryCollector struct {
	// Root prefixes every path, "" on a real host
	Root        string
	MeminfoPath string
	MemoryTotal int64

	cgroup *cgroupPaths
}

func (r *HostMemoryCollector) path(p string) string {
	return r.Root + p
}

func (r *HostMemoryCollector) Start() {
	if r.MeminfoPath == "" {
		r.MeminfoPath = "/proc/meminfo"
	}
	r.cgroup = nil
	r.MemoryTotal = 0

	for _, layout := range []cgroupPaths{cgroupV2, cgroupV1} {
		if _, err := os.Stat(r.path(layout.Limit)); err != nil {
			continue
		}
		layout := layout
		r.cgroup = &layout

		limit, err := ReadNumber(r.path(layout.Limit))
		if errors.Is(err, ErrUnlimited) {
			log.Warnf("Found unlimited memory settings in %s, fall back to %s", layout.Limit, r.MeminfoPath)
			break
		}
		if err != nil {
			log.Errorf("Cannot get memory total from %s: %v", layout.Limit, err)
			break
		}
		r.MemoryTotal = limit
		log.Infof("Set MemoryTotal %d MB from %s", r.MemoryTotal/(1024*1024), layout.Limit)
		return
	}

	total, err := ReadMeminfoTotal(r.path(r.MeminfoPath))
	if err != nil {
		log.Errorf("Cannot get memory total from %s: %v", r.MeminfoPath, err)
		return
	}
	r.MemoryTotal = total
	log.Infof("Set MemoryTotal %d MB from %s", r.MemoryTotal/(1024*1024), r.MeminfoPath)
}

func (r *HostMemoryCollector) memoryUsed() int64 {
	if r.cgroup != nil {
		usage, usageErr := ReadNumber(r.path(r.cgroup.Usage))
		inactive, inactiveErr := ReadTotalInactiveFile(r.path(r.cgroup.Stat))
		if usageErr == nil && inactiveErr == nil {
			return usage - inactive
		}
	}
	available, err := ReadMeminfoAvailable(r.path(r.MeminfoPath))
	if err != nil || r.MemoryTotal == 0 {
		return 0
	}
	return r.MemoryTotal - available
}

func (r *HostMemoryCollector) Fetch() ResourceCollectorResult {
	if r.MemoryTotal == 0 {
		return ResourceCollectorResult{Type: RESULT_NONE}
	}
	return ResourceCollectorResult{
		Type:        RESULT_HOST,
		MemoryTotal: r.MemoryTotal,
		MemoryUsed:  r.memoryUsed(),
	}
}

func (r *HostMemoryCollector) Stop() {}
