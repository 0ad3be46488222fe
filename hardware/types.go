package hardware

type DeviceMemory struct {
	Index       int   `json:"index"`
	MemoryTotal int64 `json:"mem_total"`
	MemoryUsed  int64 `json:"mem_used"`
}

// Spec is the memory available to training on this machine.
type Spec struct {
	MemoryTotal int64          `json:"mem_total"`
	MemoryUsed  int64          `json:"mem_used"`
	GPUSpec     []DeviceMemory `json:"GPU"`
	BudgetGB    float64        `json:"budget_gb"`
	Source      string         `json:"budget_source"`
}
