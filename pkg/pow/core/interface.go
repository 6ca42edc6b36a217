package core

import (
	"context"
	"io"
)

// DriverType tags a driver implementation
type DriverType int

const (
	DriverCPU DriverType = iota
	DriverOpenCL
)

func (t DriverType) String() string {
	switch t {
	case DriverCPU:
		return "cpu"
	case DriverOpenCL:
		return "opencl"
	default:
		return "unknown"
	}
}

// Driver defines the interface that every work-search backend must follow.
// A driver handles one Solve or Validate at a time; concurrent calls are serialised.
type Driver interface {
	// Name returns the human-readable name of the driver
	Name() string

	// Type returns the implementation tag
	Type() DriverType

	// Solve searches for a solution of w and stores it in w
	Solve(ctx context.Context, w *Work) error

	// Validate rebuilds the table of w and checks its solution. w is not modified.
	Validate(ctx context.Context, w *Work) (bool, error)

	// RecommendedThreads returns the parallelism suited to the hardware
	RecommendedThreads() uint32

	// Threads returns the current search parallelism
	Threads() uint32

	// SetThreads changes the search parallelism, 0 is rejected
	SetThreads(n uint32) error

	// RecommendedLookup maps a difficulty class to a table class
	RecommendedLookup(difficultyClass uint8) (uint8, error)

	// Difficulty returns the threshold of the last search
	Difficulty() uint64

	// SetDifficulty overrides the recorded threshold
	SetDifficulty(difficulty uint64)

	// Dump writes a diagnostic snapshot
	Dump(w io.Writer) error

	// Capabilities describes the driver
	Capabilities() *Capabilities

	// Close releases threads or device memory
	Close() error
}

// Capabilities describes a driver and the resources behind it
type Capabilities struct {
	// Name of the driver
	Name string `json:"name"`

	// Implementation tag
	Type string `json:"type"`

	// Whether the search runs on an accelerator
	IsHardware bool `json:"is_hardware"`

	// Parallelism currently configured and recommended
	Threads            uint32 `json:"threads"`
	RecommendedThreads uint32 `json:"recommended_threads"`

	// Largest table the driver can hold, in bytes
	MaxTableSize uint64 `json:"max_table_size"`

	// Device details for accelerator drivers
	Device *DeviceInfo `json:"device,omitempty"`
}

// DeviceInfo contains accelerator-specific information
type DeviceInfo struct {
	PlatformID      uint16 `json:"platform_id"`
	DeviceID        uint16 `json:"device_id"`
	Name            string `json:"name"`
	Vendor          string `json:"vendor"`
	MemoryAvailable uint64 `json:"memory_available"`
	MaxAllocSize    uint64 `json:"max_alloc_size"`
	ComputeUnits    uint32 `json:"compute_units"`
}

// SolveResult summarises one solve for logs and metrics
type SolveResult struct {
	Solution Nonce  `json:"solution"`
	Attempts uint64 `json:"attempts"`
	FillUs   uint64 `json:"fill_us"`
	SearchUs uint64 `json:"search_us"`
	Driver   string `json:"driver"`
}
