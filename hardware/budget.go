package hardware

import (
	log "github.com/sirupsen/logrus"
)

// DefaultBudgetGB is used when no device memory can be detected.
const DefaultBudgetGB = 24

const (
	SourceGPU      = "gpu"
	SourceHost     = "host"
	SourceFallback = "fallback"
)

// Probe starts every collector once, merges what they report and stops them.
func Probe(fallbackGB float64, collectors ...ResourceCollector) Spec {
	var spec Spec
	for _, c := range collectors {
		c.Start()
		r := c.Fetch()
		c.Stop()

		switch r.Type {
		case RESULT_HOST:
			spec.MemoryTotal = r.MemoryTotal
			spec.MemoryUsed = r.MemoryUsed
		case RESULT_GPU:
			spec.GPUSpec = append(spec.GPUSpec, r.GPU...)
		}
	}
	spec.BudgetGB, spec.Source = DetectBudgetGB(spec, fallbackGB)
	log.Infof("RAM budget %.2f GB (%s)", spec.BudgetGB, spec.Source)
	return spec
}

// DetectBudgetGB picks the memory a single training process can use: the
// smallest GPU, else the host, else fallbackGB (DefaultBudgetGB when <= 0).
func DetectBudgetGB(spec Spec, fallbackGB float64) (float64, string) {
	var smallest int64
	for _, d := range spec.GPUSpec {
		if d.MemoryTotal > 0 && (smallest == 0 || d.MemoryTotal < smallest) {
			smallest = d.MemoryTotal
		}
	}
	if smallest > 0 {
		return float64(smallest) / 1e9, SourceGPU
	}
	if spec.MemoryTotal > 0 {
		return float64(spec.MemoryTotal) / 1e9, SourceHost
	}
	if fallbackGB <= 0 {
		fallbackGB = DefaultBudgetGB
	}
	return fallbackGB, SourceFallback
}
