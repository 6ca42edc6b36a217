package hardware

import (
	"runtime"

	"github.com/pbnjay/memory"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// LogicalCPUs returns the hardware thread count, falling back to the Go runtime view
func LogicalCPUs() uint32 {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return uint32(n)
	}
	return uint32(runtime.NumCPU())
}

// PhysicalCPUs returns the core count, or 0 when unknown
func PhysicalCPUs() uint32 {
	n, err := cpu.Counts(false)
	if err != nil || n < 0 {
		return 0
	}
	return uint32(n)
}

// CPUModel returns the model name of the first CPU
func CPUModel() string {
	infos, err := cpu.Info()
	if err != nil || len(infos) == 0 {
		return runtime.GOARCH
	}
	return infos[0].ModelName
}

// TotalMemory returns installed memory in bytes, 0 when unknown
func TotalMemory() uint64 {
	return memory.TotalMemory()
}

// AvailableMemory returns memory that can be allocated without swapping, 0 when unknown
func AvailableMemory() uint64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	return vm.Available
}
