package hardware

import (
	"fmt"
	"runtime"

	"powengine/pkg/pow/core"
	"powengine/pkg/pow/methods/opencl"
)

// DeviceDetector reports which drivers can run on this machine
type DeviceDetector struct {
	runtime         opencl.Runtime
	detectedMethods map[string]bool
	capabilities    map[string]*core.Capabilities
	devices         []opencl.DeviceDescriptor
}

// NewDeviceDetector creates a detector enumerating OpenCL devices through rt
func NewDeviceDetector(rt opencl.Runtime) *DeviceDetector {
	return &DeviceDetector{
		runtime:         rt,
		detectedMethods: make(map[string]bool),
		capabilities:    make(map[string]*core.Capabilities),
	}
}

// DetectAvailableMethods probes every driver type
func (d *DeviceDetector) DetectAvailableMethods() map[string]bool {
	d.detectOpenCL()
	d.detectCPU() // Always available

	return d.detectedMethods
}

// Capabilities returns what detection found for a driver type
func (d *DeviceDetector) Capabilities(name string) *core.Capabilities {
	return d.capabilities[name]
}

// Devices returns the OpenCL devices found by the last detection
func (d *DeviceDetector) Devices() []opencl.DeviceDescriptor {
	return d.devices
}

// detectOpenCL looks for a device able to compile the search program
func (d *DeviceDetector) detectOpenCL() {
	name := core.DriverOpenCL.String()
	d.devices = nil

	catalog, err := opencl.GetCatalog(d.runtime)
	if err != nil {
		d.detectedMethods[name] = false
		d.capabilities[name] = &core.Capabilities{Name: "OpenCL", Type: name}
		return
	}
	defer catalog.Close()

	devices, err := catalog.Devices()
	if err != nil || len(devices) == 0 {
		d.detectedMethods[name] = false
		d.capabilities[name] = &core.Capabilities{Name: "OpenCL", Type: name}
		return
	}
	d.devices = devices

	for _, dev := range devices {
		if !dev.CompilerAvailable {
			continue
		}
		d.detectedMethods[name] = true
		d.capabilities[name] = &core.Capabilities{
			Name:               "OpenCL",
			Type:               name,
			IsHardware:         true,
			RecommendedThreads: dev.ComputeUnits * 256,
			MaxTableSize:       min(dev.MemoryAvailable, dev.MaxAllocSize*4, core.MaxTableSize),
			Device:             dev.Info(),
		}
		return
	}

	d.detectedMethods[name] = false
	d.capabilities[name] = &core.Capabilities{Name: "OpenCL", Type: name}
}

// detectCPU describes the host
func (d *DeviceDetector) detectCPU() {
	name := core.DriverCPU.String()
	maxTable := core.MaxTableSize
	if total := TotalMemory(); total != 0 && total < maxTable {
		maxTable = total
	}

	d.detectedMethods[name] = true
	d.capabilities[name] = &core.Capabilities{
		Name:               "CPU",
		Type:               name,
		IsHardware:         false,
		RecommendedThreads: LogicalCPUs(),
		MaxTableSize:       maxTable,
		Device: &core.DeviceInfo{
			Name:            CPUModel(),
			Vendor:          fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
			MemoryAvailable: AvailableMemory(),
			ComputeUnits:    PhysicalCPUs(),
		},
	}
}
