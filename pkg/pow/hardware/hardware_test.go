package hardware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powengine/pkg/pow/methods/opencl"
)

func TestHostProbes(t *testing.T) {
	assert.GreaterOrEqual(t, LogicalCPUs(), uint32(1))
	assert.NotEmpty(t, CPUModel())
}

func TestDetectWithEmulator(t *testing.T) {
	d := NewDeviceDetector(opencl.NewEmulator())
	detected := d.DetectAvailableMethods()

	assert.True(t, detected["cpu"])
	assert.True(t, detected["opencl"])
	require.Len(t, d.Devices(), 1)

	caps := d.Capabilities("opencl")
	require.NotNil(t, caps)
	require.NotNil(t, caps.Device)
	assert.Equal(t, opencl.EmulatedDevice.Name, caps.Device.Name)
	assert.Equal(t, uint32(1024), caps.RecommendedThreads)
}

func TestDetectWithoutCompiler(t *testing.T) {
	rt := opencl.NewEmulator(opencl.DeviceDescriptor{Name: "Display only", Vendor: "Test", MemoryAvailable: 1 << 20})
	d := NewDeviceDetector(rt)
	detected := d.DetectAvailableMethods()

	assert.False(t, detected["opencl"])
	assert.True(t, detected["cpu"])
	assert.Len(t, d.Devices(), 1)
}

func TestDetectNilRuntime(t *testing.T) {
	d := NewDeviceDetector(nil)
	detected := d.DetectAvailableMethods()
	assert.False(t, detected["opencl"])
	assert.Equal(t, LogicalCPUs(), d.Capabilities("cpu").RecommendedThreads)
}
