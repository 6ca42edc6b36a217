package pow

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powengine/pkg/pow/core"
	"powengine/pkg/pow/methods/opencl"
)

var testDevices = []opencl.DeviceDescriptor{
	{PlatformID: 0, DeviceID: 0, Name: "Emulated GPU", Vendor: "Test", CompilerAvailable: true,
		MemoryAvailable: 1 << 24, MaxAllocSize: 1 << 22, ComputeUnits: 1},
	{PlatformID: 0, DeviceID: 1, Name: "Emulated iGPU", Vendor: "Test", CompilerAvailable: true,
		MemoryAvailable: 1 << 22, MaxAllocSize: 1 << 20, ComputeUnits: 1},
}

func newEngine() *Engine {
	return NewEngine(WithRuntime(opencl.NewEmulator(testDevices...)))
}

func assertSuccess(t *testing.T, ec *ErrorContext) {
	t.Helper()
	assert.False(t, ec.Failed())
	assert.Equal(t, core.CategorySuccess, ec.ErrorCategory())
	assert.Equal(t, "success", ec.ErrorString())
}

func assertGeneric(t *testing.T, ec *ErrorContext, code core.Code, msg string) {
	t.Helper()
	assert.True(t, ec.Failed())
	assert.Equal(t, core.CategoryGeneric, ec.ErrorCategory())
	assert.Equal(t, int64(code), ec.ErrorCode())
	assert.Equal(t, msg, ec.ErrorString())
}

func TestSolveValidateThroughBoundary(t *testing.T) {
	e := newEngine()
	ec := NewContext()
	defer DestroyContext(ec)

	for _, create := range []func() Driver{
		func() Driver { return e.NewCPUDriver(ec) },
		func() Driver { return e.NewOpenCLDriver(ec, 0, 0) },
	} {
		d := create()
		assertSuccess(t, ec)
		require.NotNil(t, d)

		if d.Type() == core.DriverOpenCL {
			ThreadsSet(ec, d, 64)
			assertSuccess(t, ec)
		}

		w := NewWork(ec)
		w.SetNonce(1, 0)
		w.SetDifficulty(core.BitDifficulty(20))
		w.SetTableSize(4 << 14)

		Solve(ec, d, w)
		assertSuccess(t, ec)

		assert.True(t, Validate(ec, w))
		assertSuccess(t, ec)
		assert.True(t, DriverValidate(ec, d, w))
		assertSuccess(t, ec)

		assert.Equal(t, core.BitDifficulty(20), DifficultyGet(ec, d))
		DestroyWork(ec, w)
		DestroyDriver(ec, d)
		assertSuccess(t, ec)
	}
}

func TestValidateInvalidTableSize(t *testing.T) {
	ec := NewContext()
	w := NewWork(ec)
	w.SetTableSize(0)

	assert.False(t, Validate(ec, w))
	assertGeneric(t, ec, core.CodeWorkInvalidTableSize, "Invalid table size")

	d := newEngine().NewCPUDriver(ec)
	assert.False(t, DriverValidate(ec, d, w))
	assertGeneric(t, ec, core.CodeWorkInvalidTableSize, "Invalid table size")
}

func TestThreadsBoundary(t *testing.T) {
	ec := NewContext()
	d := newEngine().NewCPUDriver(ec)

	assert.Equal(t, RecommendedThreads(ec, d), ThreadsGet(ec, d))
	assertSuccess(t, ec)

	ThreadsSet(ec, d, 0)
	assertGeneric(t, ec, core.CodeThreadInvalidCount, "Invalid thread count")

	ThreadsSet(ec, d, 5)
	assertSuccess(t, ec)
	assert.Equal(t, uint32(5), ThreadsGet(ec, d))
}

func TestRecommendedLookupBoundary(t *testing.T) {
	e := newEngine()
	ec := NewContext()
	host := e.NewCPUDriver(ec)
	gpu := e.NewOpenCLDriver(ec, 0, 0)

	assert.Equal(t, uint8(20), RecommendedLookup(ec, host, 40))
	assertSuccess(t, ec)
	assert.Equal(t, uint8(21), RecommendedLookup(ec, gpu, 40))
	assertSuccess(t, ec)

	RecommendedLookup(ec, host, 0)
	assertGeneric(t, ec, core.CodeDifficultyInvalid, "Invalid difficulty")
}

func TestNilHandles(t *testing.T) {
	ec := NewContext()

	Solve(ec, nil, NewWork(ec))
	assertGeneric(t, ec, core.CodeDriverInvalid, "Invalid driver")

	ThreadsGet(ec, nil)
	assertGeneric(t, ec, core.CodeDriverInvalid, "Invalid driver")

	DeviceName(ec, nil)
	assertGeneric(t, ec, core.CodeDeviceInvalid, "Invalid device")

	DeviceCount(ec, nil)
	assertGeneric(t, ec, core.CodeDeviceListInvalid, "Invalid device list")

	d := newEngine().NewCPUDriver(ec)
	Solve(ec, d, nil)
	assertGeneric(t, ec, core.CodeWorkInvalid, "Invalid work")

	DriverDevice(ec, d)
	assertGeneric(t, ec, core.CodeDriverInvalidType, "Invalid driver type")
}

func TestOpenCLDriverErrors(t *testing.T) {
	e := newEngine()
	ec := NewContext()

	assert.Nil(t, e.NewOpenCLDriver(ec, 3, 0))
	assertGeneric(t, ec, core.CodeDeviceNotFound, "Device not found")

	d := e.NewOpenCLDriver(ec, 0, 1)
	require.NotNil(t, d)
	w := NewWork(ec)
	w.SetNonce(1, 0)
	w.SetTableSize(1 << 23)
	Solve(ec, d, w)
	assert.True(t, ec.Failed())
	assert.Equal(t, core.CategoryOpenCL, ec.ErrorCategory())
	assert.Equal(t, int64(opencl.CLInvalidBufferSize), ec.ErrorCode())
	assert.Equal(t, "opencl", ec.CategoryString())

	dev := DriverDevice(ec, d)
	assertSuccess(t, ec)
	assert.Equal(t, "Emulated iGPU", dev.Name)
}

func TestDeviceEnumeration(t *testing.T) {
	e := newEngine()
	ec := NewContext()

	list := e.DeviceListGet(ec)
	assertSuccess(t, ec)

	count := DeviceCount(ec, list)
	require.Equal(t, uint16(2), count)

	for i := uint16(0); i < count; i++ {
		dev := DeviceGetByIndex(ec, list, i)
		assertSuccess(t, ec)
		require.NotNil(t, dev)
		assert.Equal(t, uint16(0), DevicePlatformID(ec, dev))
		assert.Equal(t, i, DeviceID(ec, dev))
		assert.NotEmpty(t, DeviceName(ec, dev))
		assert.NotEmpty(t, DeviceVendor(ec, dev))
		assert.True(t, DeviceCompilerAvailable(ec, dev))
		assert.Positive(t, DeviceMemoryAvailable(ec, dev))
		assert.Positive(t, DeviceMaximumAllocSize(ec, dev))
	}

	assert.Nil(t, DeviceGetByIndex(ec, list, count))
	assertGeneric(t, ec, core.CodeInvalidIndex, "Index out of bounds")

	dev := DeviceGetByPlatformDevice(ec, list, 0, 1)
	assertSuccess(t, ec)
	assert.Equal(t, "Emulated iGPU", dev.Name)

	assert.Nil(t, DeviceGetByPlatformDevice(ec, list, 9, 9))
	assertGeneric(t, ec, core.CodeDeviceNotFound, "Device not found")

	DeviceListDestroy(ec, list)
	assertSuccess(t, ec)
	DeviceCount(ec, list)
	assertGeneric(t, ec, core.CodeDeviceListInvalid, "Invalid device list")
}

func TestDumpDriver(t *testing.T) {
	ec := NewContext()
	d := newEngine().NewOpenCLDriver(ec, 0, 0)

	var buf bytes.Buffer
	DumpDriver(ec, d, &buf)
	assertSuccess(t, ec)
	assert.Contains(t, buf.String(), "Emulated GPU")
}

func TestErrorStringTruncation(t *testing.T) {
	ec := NewContext()
	ThreadsSet(ec, newEngine().NewCPUDriver(ec), 0)

	buf := make([]byte, 0, 4)
	n := ec.ErrorStringInto(buf)
	assert.Equal(t, "Inva", string(buf[:n]))
}
