package opencl

import (
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"powengine/pkg/pow/core"
)

// EmulatedDevice is the descriptor used by NewEmulator when none is given.
// Its allocation limit is below its memory so large tables use several slabs.
var EmulatedDevice = DeviceDescriptor{
	PlatformID:        0,
	DeviceID:          0,
	Name:              "Host Emulator",
	Vendor:            "powengine",
	CompilerAvailable: true,
	MemoryAvailable:   1 << 30,
	MaxAllocSize:      256 << 20,
	ComputeUnits:      4,
}

// Emulator is a Runtime that executes the kernels on host goroutines.
// Each device keeps its table in host memory and honours the same launch geometry as a GPU.
type Emulator struct {
	devices []DeviceDescriptor
}

// NewEmulator creates an emulated runtime exposing descs
func NewEmulator(descs ...DeviceDescriptor) *Emulator {
	if len(descs) == 0 {
		descs = []DeviceDescriptor{EmulatedDevice}
	}
	return &Emulator{devices: descs}
}

// Devices lists the emulated devices
func (e *Emulator) Devices() ([]DeviceDescriptor, error) {
	return append([]DeviceDescriptor(nil), e.devices...), nil
}

// Open returns an emulated device
func (e *Emulator) Open(platform, device uint16) (Device, error) {
	for _, d := range e.devices {
		if d.PlatformID == platform && d.DeviceID == device {
			if !d.CompilerAvailable {
				return nil, core.NewOpenCLError(CLBuildProgramFailure, "")
			}
			return &emulatedDevice{desc: d}, nil
		}
	}
	return nil, core.NewOpenCLError(CLDeviceNotFound, "")
}

type emulatedDevice struct {
	mu    sync.Mutex
	desc  DeviceDescriptor
	table *core.LookupTable
	slabs int
	canon core.Canonical
}

func (d *emulatedDevice) Descriptor() DeviceDescriptor {
	return d.desc
}

func (d *emulatedDevice) Allocate(entries uint64, slabs int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	size := entries * core.EntrySize
	if slabs < 1 || size > d.desc.MemoryAvailable || size/uint64(slabs) > d.desc.MaxAllocSize {
		return core.NewOpenCLError(CLMemObjectAllocationFailure, "")
	}
	d.table = nil
	table, err := core.NewLookupTable(size)
	if err != nil {
		return core.NewOpenCLError(CLInvalidBufferSize, "")
	}
	d.table = table
	d.slabs = slabs
	return nil
}

func (d *emulatedDevice) Reset(seed core.Nonce) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.table == nil {
		return core.NewOpenCLError(CLInvalidValue, "")
	}
	d.canon = core.NewCanonical(seed)
	d.table.Clear()
	return nil
}

// launch runs one closure per work-item, spread over GOMAXPROCS goroutines
func launch(workItems uint32, item func(i uint64) bool) {
	workers := uint64(runtime.GOMAXPROCS(0))
	items := uint64(workItems)
	var stop atomic.Bool

	var g errgroup.Group
	for w := uint64(0); w < workers && w < items; w++ {
		w := w
		g.Go(func() error {
			for i := w; i < items && !stop.Load(); i += workers {
				if item(i) {
					stop.Store(true)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (d *emulatedDevice) Fill(begin uint64, workItems, stepping uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.table == nil {
		return core.NewOpenCLError(CLInvalidValue, "")
	}

	entries := d.table.Entries()
	launch(workItems, func(i uint64) bool {
		lo := begin + i*uint64(stepping)
		if lo >= entries {
			return false
		}
		d.table.FillRange(d.canon, lo, min(lo+uint64(stepping), entries))
		return false
	})
	return nil
}

func (d *emulatedDevice) Search(difficulty, begin uint64, workItems, stepping uint32) (core.Nonce, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.table == nil {
		return core.Nonce{}, false, core.NewOpenCLError(CLInvalidValue, "")
	}

	var (
		once     sync.Once
		solution core.Nonce
		found    bool
	)
	launch(workItems, func(i uint64) bool {
		start := begin + i*uint64(stepping)
		candidate, ok := d.table.Search(d.canon, difficulty, start, 1, uint64(stepping))
		if ok {
			once.Do(func() {
				solution = candidate
				found = true
			})
		}
		return ok
	})
	return solution, found, nil
}

func (d *emulatedDevice) ReadSlot(slot uint64) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.table == nil || slot >= d.table.Entries() {
		return 0, core.NewOpenCLError(CLInvalidValue, "")
	}
	return d.table.Slot(slot), nil
}

func (d *emulatedDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.table = nil
	return nil
}
