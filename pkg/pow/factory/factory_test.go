package factory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powengine/pkg/pow/core"
	"powengine/pkg/pow/methods/opencl"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, []string{"opencl", "cpu"}, cfg.PreferredOrder)
	assert.True(t, cfg.EnableFallback)
	assert.Zero(t, cfg.Threads)
}

func TestConfigFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.PreferredOrder = []string{"cpu"}
	cfg.Threads = 6
	cfg.OpenCLPlatform = 1
	cfg.LogFile = "/tmp/pow.log"
	require.NoError(t, SaveConfigToFile(cfg, path))

	loaded, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadMissingConfigYieldsDefaults(t *testing.T) {
	cfg, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestCreateByName(t *testing.T) {
	f := NewDriverFactory(DefaultConfig(), WithRuntime(opencl.NewEmulator()))

	d, err := f.Create("cpu")
	require.NoError(t, err)
	assert.Equal(t, core.DriverCPU, d.Type())
	require.NoError(t, d.Close())

	d, err = f.Create("opencl")
	require.NoError(t, err)
	assert.Equal(t, core.DriverOpenCL, d.Type())
	require.NoError(t, d.Close())

	_, err = f.Create("cuda")
	assert.ErrorIs(t, err, core.ErrDriverInvalidType)
}

func TestCreateBestPrefersOpenCL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Threads = 32
	f := NewDriverFactory(cfg, WithRuntime(opencl.NewEmulator()))

	d, err := f.CreateBest()
	require.NoError(t, err)
	defer d.Close()
	assert.Equal(t, core.DriverOpenCL, d.Type())
	assert.Equal(t, uint32(32), d.Threads())
}

func TestCreateBestFallsBackToCPU(t *testing.T) {
	f := NewDriverFactory(DefaultConfig(), WithRuntime(opencl.NewEmulator()))
	f.config.OpenCLPlatform = 7

	d, err := f.CreateBest()
	require.NoError(t, err)
	assert.Equal(t, core.DriverCPU, d.Type())
}

func TestCreateBestWithoutFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableFallback = false
	cfg.OpenCLPlatform = 7
	f := NewDriverFactory(cfg, WithRuntime(opencl.NewEmulator()))

	_, err := f.CreateBest()
	assert.ErrorIs(t, err, core.ErrDeviceNotFound)
}

func TestCreateBestNoDevices(t *testing.T) {
	f := NewDriverFactory(DefaultConfig(), WithRuntime(nil))

	d, err := f.CreateBest()
	require.NoError(t, err)
	assert.Equal(t, core.DriverCPU, d.Type())
}

func TestDetectionReport(t *testing.T) {
	f := NewDriverFactory(DefaultConfig(), WithRuntime(opencl.NewEmulator()))
	report := f.GetDetectionReport()

	require.Len(t, report.Drivers, 2)
	assert.Equal(t, "opencl", report.Drivers[0].Name)
	assert.Equal(t, "cpu", report.Drivers[1].Name)
	assert.Equal(t, "opencl", report.BestDriver)
	assert.Equal(t, 2, report.AvailableCount)
	assert.Len(t, report.Devices, 1)
	assert.NotEmpty(t, report.Drivers[0].Description)
}

func TestSortDriversByPriority(t *testing.T) {
	drivers := []*DriverStatus{
		{Name: "zeta", Priority: 999},
		{Name: "cpu", Priority: 1},
		{Name: "alpha", Priority: 999},
		{Name: "opencl", Priority: 0},
	}
	SortDriversByPriority(drivers)

	var names []string
	for _, d := range drivers {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"opencl", "cpu", "alpha", "zeta"}, names)
}
