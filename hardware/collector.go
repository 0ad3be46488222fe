package hardware

const (
	RESULT_HOST = "host"
	RESULT_GPU  = "GPU"
	RESULT_NONE = "none"
)

type ResourceCollectorResult struct {
	Type        string
	MemoryTotal int64
	MemoryUsed  int64
	GPU         []DeviceMemory
}

type ResourceCollector interface {
	Start()
	Stop()

	// return memory totals and current usage in bytes
	Fetch() ResourceCollectorResult
}
