package hardware

import (
	"github.com/mindprince/gonvml"
	log "github.com/sirupsen/logrus"
)

type nvmlDevice interface {
	MinorNumber() (uint, error)
	MemoryInfo() (uint64, uint64, error)
}

type nvmlLibrary interface {
	Initialize() error
	Shutdown() error
	DeviceCount() (uint, error)
	DeviceHandleByIndex(idx uint) (nvmlDevice, error)
}

type gonvmlLibrary struct{}

func (gonvmlLibrary) Initialize() error          { return gonvml.Initialize() }
func (gonvmlLibrary) Shutdown() error            { return gonvml.Shutdown() }
func (gonvmlLibrary) DeviceCount() (uint, error) { return gonvml.DeviceCount() }

func (gonvmlLibrary) DeviceHandleByIndex(idx uint) (nvmlDevice, error) {
	dev, err := gonvml.DeviceHandleByIndex(idx)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

type GpuMemoryCollector struct {
	Available  bool
	NumDevices int
	Devices    []DeviceMemory

	nvml    nvmlLibrary
	handles []uint // NVML handle index of each entry in Devices
}

func (g *GpuMemoryCollector) lib() nvmlLibrary {
	if g.nvml == nil {
		g.nvml = gonvmlLibrary{}
	}
	return g.nvml
}

func (g *GpuMemoryCollector) Start() {
	nvml := g.lib()
	err := nvml.Initialize()
	g.Available = false
	g.Devices = make([]DeviceMemory, 0)
	g.handles = nil

	if err != nil {
		log.Debugf("NVML unavailable: %v", err)
		return
	}

	numDevices, err := nvml.DeviceCount()
	if err != nil {
		log.Warnf("DeviceCount() error: %v", err)
		nvml.Shutdown()
		return
	}
	log.Infof("Get %d gpu-devices", numDevices)
	if numDevices == 0 {
		nvml.Shutdown()
		return
	}

	g.NumDevices = int(numDevices)
	g.Devices = make([]DeviceMemory, 0, numDevices)
	for i := uint(0); i < numDevices; i++ {
		dev, err := nvml.DeviceHandleByIndex(i)
		if err != nil {
			log.Warnf("DeviceHandleByIndex(%d) error: %v", i, err)
			continue
		}
		deviceIndex, err := dev.MinorNumber()
		if err != nil {
			deviceIndex = i
		}
		total, _, err := dev.MemoryInfo()
		if err != nil {
			log.Warnf("device[%d] MemoryInfo() error: %v", i, err)
			continue
		}

		g.Devices = append(g.Devices, DeviceMemory{Index: int(deviceIndex), MemoryTotal: int64(total)})
		g.handles = append(g.handles, i)
		log.Infof("Set device[%d] Index=%d, Memory=%d", i, deviceIndex, total)
	}
	g.Available = len(g.Devices) > 0
	if !g.Available {
		log.Warnf("no usable gpu-device out of %d", numDevices)
		nvml.Shutdown()
	}
}

func (g *GpuMemoryCollector) Stop() {
	if g.Available {
		g.lib().Shutdown()
		g.Available = false
	}
}

func (g *GpuMemoryCollector) Fetch() ResourceCollectorResult {
	if !g.Available {
		return ResourceCollectorResult{Type: RESULT_NONE}
	}

	nvml := g.lib()
	results := make([]DeviceMemory, 0, len(g.Devices))
	for i, spec := range g.Devices {
		result := spec
		dev, err := nvml.DeviceHandleByIndex(g.handles[i])
		if err != nil {
			log.Debugf("DeviceHandleByIndex() error: %v", err)
			results = append(results, result)
			continue
		}
		_, memoryUsed, err := dev.MemoryInfo()
		if err != nil {
			log.Debugf("dev.MemoryInfo() error: %v", err)
		} else {
			result.MemoryUsed = int64(memoryUsed)
		}
		log.Debugf("GPU::device [%d], Memory: %d/%d", result.Index, result.MemoryUsed, result.MemoryTotal)
		results = append(results, result)
	}

	return ResourceCollectorResult{
		Type: RESULT_GPU,
		GPU:  results,
	}
}
