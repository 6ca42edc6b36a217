//go:build opencl

package opencl

import (
	_ "embed"
	"errors"
	"math/bits"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"

	"powengine/pkg/pow/core"
)

// Available is true when compiled with the opencl build tag
const Available = true

//go:embed kernel.cl
var kernelSource string

var clErrorCodes = map[error]int64{
	cl.ErrDeviceNotFound:             CLDeviceNotFound,
	cl.ErrMemObjectAllocationFailure: CLMemObjectAllocationFailure,
	cl.ErrOutOfResources:             CLOutOfResources,
	cl.ErrBuildProgramFailure:        CLBuildProgramFailure,
	cl.ErrInvalidValue:               CLInvalidValue,
	cl.ErrInvalidPlatform:            CLInvalidPlatform,
	cl.ErrInvalidDevice:              CLInvalidDevice,
	cl.ErrInvalidBufferSize:          CLInvalidBufferSize,
}

// convertError keeps the native status code of a runtime failure
func convertError(err error) error {
	if err == nil {
		return nil
	}
	if code, ok := clErrorCodes[err]; ok {
		return core.NewOpenCLError(code, err.Error())
	}
	var other cl.ErrOther
	if errors.As(err, &other) {
		return core.NewOpenCLError(int64(other), err.Error())
	}
	return core.NewOpenCLError(CLOutOfResources, err.Error())
}

type clRuntime struct{}

// DefaultRuntime returns the system OpenCL runtime
func DefaultRuntime() Runtime {
	return clRuntime{}
}

func (clRuntime) devices() ([][]*cl.Device, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		converted := convertError(err)
		var e *core.Error
		if errors.As(converted, &e) && e.Code == CLPlatformNotFound {
			return nil, nil
		}
		return nil, converted
	}

	out := make([][]*cl.Device, len(platforms))
	for p, platform := range platforms {
		devices, err := platform.GetDevices(cl.DeviceTypeAll)
		if err != nil {
			if errors.Is(err, cl.ErrDeviceNotFound) {
				continue
			}
			return nil, convertError(err)
		}
		out[p] = devices
	}
	return out, nil
}

func (r clRuntime) Devices() ([]DeviceDescriptor, error) {
	platforms, err := r.devices()
	if err != nil {
		return nil, err
	}
	var descs []DeviceDescriptor
	for p, devices := range platforms {
		for d, device := range devices {
			descs = append(descs, describe(uint16(p), uint16(d), device))
		}
	}
	return descs, nil
}

func describe(platform, id uint16, device *cl.Device) DeviceDescriptor {
	return DeviceDescriptor{
		PlatformID:        platform,
		DeviceID:          id,
		Name:              device.Name(),
		Vendor:            device.Vendor(),
		CompilerAvailable: device.CompilerAvailable(),
		MemoryAvailable:   uint64(device.GlobalMemSize()),
		MaxAllocSize:      uint64(device.MaxMemAllocSize()),
		ComputeUnits:      uint32(device.MaxComputeUnits()),
	}
}

func (r clRuntime) Open(platform, device uint16) (Device, error) {
	platforms, err := r.devices()
	if err != nil {
		return nil, err
	}
	if int(platform) >= len(platforms) {
		return nil, core.NewOpenCLError(CLInvalidPlatform, "")
	}
	if int(device) >= len(platforms[platform]) {
		return nil, core.NewOpenCLError(CLInvalidDevice, "")
	}

	d := &clDevice{
		desc:   describe(platform, device, platforms[platform][device]),
		device: platforms[platform][device],
	}
	if err := d.build(); err != nil {
		_ = d.Release()
		return nil, err
	}
	return d, nil
}

type clDevice struct {
	desc   DeviceDescriptor
	device *cl.Device

	context *cl.Context
	queue   *cl.CommandQueue
	program *cl.Program
	clear   *cl.Kernel
	fill    *cl.Kernel
	search  *cl.Kernel

	flag   *cl.MemObject
	result *cl.MemObject
	slabs  []*cl.MemObject

	entries   uint64
	slabShift uint64
	k0, k1    uint64
}

func (d *clDevice) build() error {
	var err error
	if d.context, err = cl.CreateContext([]*cl.Device{d.device}); err != nil {
		return convertError(err)
	}
	if d.queue, err = d.context.CreateCommandQueue(d.device, 0); err != nil {
		return convertError(err)
	}
	if d.program, err = d.context.CreateProgramWithSource([]string{kernelSource}); err != nil {
		return convertError(err)
	}
	if err = d.program.BuildProgram([]*cl.Device{d.device}, ""); err != nil {
		return convertError(err)
	}
	if d.clear, err = d.program.CreateKernel("clear_table"); err != nil {
		return convertError(err)
	}
	if d.fill, err = d.program.CreateKernel("fill"); err != nil {
		return convertError(err)
	}
	if d.search, err = d.program.CreateKernel("search"); err != nil {
		return convertError(err)
	}
	if d.flag, err = d.context.CreateEmptyBuffer(cl.MemReadWrite, 4); err != nil {
		return convertError(err)
	}
	if d.result, err = d.context.CreateEmptyBuffer(cl.MemReadWrite, 16); err != nil {
		return convertError(err)
	}
	return nil
}

func (d *clDevice) Descriptor() DeviceDescriptor {
	return d.desc
}

func (d *clDevice) releaseSlabs() {
	for _, slab := range d.slabs {
		slab.Release()
	}
	d.slabs = nil
	d.entries = 0
}

func (d *clDevice) Allocate(entries uint64, slabs int) error {
	d.releaseSlabs()

	perSlab := entries / uint64(slabs)
	for i := 0; i < slabs; i++ {
		slab, err := d.context.CreateEmptyBuffer(cl.MemReadWrite, int(perSlab*core.EntrySize))
		if err != nil {
			d.releaseSlabs()
			return convertError(err)
		}
		d.slabs = append(d.slabs, slab)
	}
	d.entries = entries
	d.slabShift = uint64(bits.TrailingZeros64(perSlab))
	return nil
}

// slabArgs binds four slab arguments, repeating the first for unused ones
func (d *clDevice) slabArgs() []interface{} {
	args := make([]interface{}, 4)
	for i := range args {
		if i < len(d.slabs) {
			args[i] = d.slabs[i]
		} else {
			args[i] = d.slabs[0]
		}
	}
	return args
}

func (d *clDevice) run(kernel *cl.Kernel, workItems int, args ...interface{}) error {
	if err := kernel.SetArgs(append(d.slabArgs(), args...)...); err != nil {
		return convertError(err)
	}
	if _, err := d.queue.EnqueueNDRangeKernel(kernel, nil, []int{workItems}, nil, nil); err != nil {
		return convertError(err)
	}
	return convertError(d.queue.Finish())
}

func (d *clDevice) Reset(seed core.Nonce) error {
	if len(d.slabs) == 0 {
		return core.NewOpenCLError(CLInvalidValue, "table not allocated")
	}
	d.k0, d.k1 = seed.Hi, seed.Lo
	items := (d.entries + core.Stepping - 1) / core.Stepping
	return d.run(d.clear, int(items), d.slabShift, d.entries, uint32(core.Stepping))
}

func (d *clDevice) Fill(begin uint64, workItems, stepping uint32) error {
	if len(d.slabs) == 0 {
		return core.NewOpenCLError(CLInvalidValue, "table not allocated")
	}
	return d.run(d.fill, int(workItems), d.slabShift, d.k0, d.k1, d.entries-1, begin, stepping, d.entries)
}

func (d *clDevice) Search(difficulty, begin uint64, workItems, stepping uint32) (core.Nonce, bool, error) {
	if len(d.slabs) == 0 {
		return core.Nonce{}, false, core.NewOpenCLError(CLInvalidValue, "table not allocated")
	}

	var flag uint32
	if _, err := d.queue.EnqueueWriteBuffer(d.flag, true, 0, 4, unsafe.Pointer(&flag), nil); err != nil {
		return core.Nonce{}, false, convertError(err)
	}

	mask := d.entries - 1
	reject := core.QuickMask(difficulty) | mask
	if err := d.run(d.search, int(workItems), d.slabShift, d.k0, d.k1, mask, difficulty, reject, begin, stepping, d.flag, d.result); err != nil {
		return core.Nonce{}, false, err
	}

	if _, err := d.queue.EnqueueReadBuffer(d.flag, true, 0, 4, unsafe.Pointer(&flag), nil); err != nil {
		return core.Nonce{}, false, convertError(err)
	}
	if flag == 0 {
		return core.Nonce{}, false, nil
	}

	var result [2]uint64
	if _, err := d.queue.EnqueueReadBuffer(d.result, true, 0, 16, unsafe.Pointer(&result[0]), nil); err != nil {
		return core.Nonce{}, false, convertError(err)
	}
	return core.Nonce{Hi: result[0], Lo: result[1]}, true, nil
}

func (d *clDevice) ReadSlot(slot uint64) (uint32, error) {
	if slot >= d.entries {
		return 0, core.NewOpenCLError(CLInvalidValue, "slot out of range")
	}
	slab := d.slabs[slot>>d.slabShift]
	offset := (slot & (uint64(1)<<d.slabShift - 1)) * core.EntrySize

	var value uint32
	if _, err := d.queue.EnqueueReadBuffer(slab, true, int(offset), 4, unsafe.Pointer(&value), nil); err != nil {
		return 0, convertError(err)
	}
	return value, nil
}

func (d *clDevice) Release() error {
	d.releaseSlabs()
	for _, mem := range []*cl.MemObject{d.flag, d.result} {
		if mem != nil {
			mem.Release()
		}
	}
	for _, kernel := range []*cl.Kernel{d.clear, d.fill, d.search} {
		if kernel != nil {
			kernel.Release()
		}
	}
	if d.program != nil {
		d.program.Release()
	}
	if d.queue != nil {
		d.queue.Release()
	}
	if d.context != nil {
		d.context.Release()
	}
	return nil
}
