package opencl

import (
	"fmt"

	"powengine/pkg/pow/core"
)

// Native OpenCL status codes surfaced by this package
const (
	CLDeviceNotFound             = -1
	CLMemObjectAllocationFailure = -4
	CLOutOfResources             = -5
	CLBuildProgramFailure        = -11
	CLInvalidValue               = -30
	CLInvalidPlatform            = -32
	CLInvalidDevice              = -33
	CLInvalidBufferSize          = -61
	CLPlatformNotFound           = -1001
)

// DeviceDescriptor is a snapshot of one OpenCL device taken at enumeration time
type DeviceDescriptor struct {
	PlatformID        uint16 `json:"platform_id"`
	DeviceID          uint16 `json:"device_id"`
	Name              string `json:"name"`
	Vendor            string `json:"vendor"`
	CompilerAvailable bool   `json:"compiler_available"`
	MemoryAvailable   uint64 `json:"memory_available"`
	MaxAllocSize      uint64 `json:"max_alloc_size"`
	ComputeUnits      uint32 `json:"compute_units"`
}

func (d DeviceDescriptor) String() string {
	return fmt.Sprintf("[%d:%d] %s (%s) %d MB, max alloc %d MB",
		d.PlatformID, d.DeviceID, d.Name, d.Vendor, d.MemoryAvailable>>20, d.MaxAllocSize>>20)
}

// Info converts the descriptor for core.Capabilities
func (d DeviceDescriptor) Info() *core.DeviceInfo {
	return &core.DeviceInfo{
		PlatformID:      d.PlatformID,
		DeviceID:        d.DeviceID,
		Name:            d.Name,
		Vendor:          d.Vendor,
		MemoryAvailable: d.MemoryAvailable,
		MaxAllocSize:    d.MaxAllocSize,
		ComputeUnits:    d.ComputeUnits,
	}
}

// Runtime enumerates devices and opens them with the search program compiled
type Runtime interface {
	// Devices lists every device of every platform
	Devices() ([]DeviceDescriptor, error)

	// Open compiles the search program for a device
	Open(platform, device uint16) (Device, error)
}

// Device is an opened device holding the table in its own memory.
// Work is expressed in launches of workItems items, each covering stepping
// consecutive preimages or candidates starting at begin.
type Device interface {
	Descriptor() DeviceDescriptor

	// Allocate reserves a table of entries slots split across slabs buffers
	Allocate(entries uint64, slabs int) error

	// Reset zeroes the table and keys the device with seed
	Reset(seed core.Nonce) error

	// Fill inserts preimages [begin, begin+workItems*stepping)
	Fill(begin uint64, workItems, stepping uint32) error

	// Search probes candidates [begin, begin+workItems*stepping) and reports the first accepted one
	Search(difficulty, begin uint64, workItems, stepping uint32) (core.Nonce, bool, error)

	// ReadSlot reads one slot back to the host
	ReadSlot(slot uint64) (uint32, error)

	// Release frees buffers, kernels and queues
	Release() error
}
