//go:build !opencl

package opencl

import "powengine/pkg/pow/core"

// Available is false when compiled without the opencl build tag
const Available = false

type stubRuntime struct{}

// DefaultRuntime returns a runtime with no devices. Rebuild with -tags opencl for GPU support.
func DefaultRuntime() Runtime {
	return stubRuntime{}
}

func (stubRuntime) Devices() ([]DeviceDescriptor, error) {
	return nil, nil
}

func (stubRuntime) Open(platform, device uint16) (Device, error) {
	return nil, core.NewOpenCLError(CLPlatformNotFound, "OpenCL support not compiled in, rebuild with -tags opencl")
}
