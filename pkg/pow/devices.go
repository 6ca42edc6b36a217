package pow

import (
	"powengine/pkg/pow/core"
	"powengine/pkg/pow/methods/opencl"
)

// DeviceListGet enumerates the devices of the engine runtime
func (e *Engine) DeviceListGet(ec *ErrorContext) *DeviceList {
	list, err := opencl.GetCatalog(e.runtime)
	if !report(ec, err) {
		return nil
	}
	return list
}

// DeviceListDestroy releases a device list
func DeviceListDestroy(ec *ErrorContext, list *DeviceList) {
	report(ec, list.Close())
}

// DeviceCount returns the number of devices in list
func DeviceCount(ec *ErrorContext, list *DeviceList) uint16 {
	n, err := list.Count()
	report(ec, err)
	return n
}

// DeviceGetByIndex returns device i of list
func DeviceGetByIndex(ec *ErrorContext, list *DeviceList, i uint16) *Device {
	desc, err := list.Get(i)
	if !report(ec, err) {
		return nil
	}
	return &desc
}

// DeviceGetByPlatformDevice finds a device of list by its ids
func DeviceGetByPlatformDevice(ec *ErrorContext, list *DeviceList, platform, device uint16) *Device {
	desc, err := list.GetByPlatformDevice(platform, device)
	if !report(ec, err) {
		return nil
	}
	return &desc
}

func deviceField[T any](ec *ErrorContext, dev *Device, field func(*Device) T) T {
	var zero T
	if dev == nil {
		report(ec, core.ErrDeviceInvalid)
		return zero
	}
	report(ec, nil)
	return field(dev)
}

// DevicePlatformID returns the platform id of dev
func DevicePlatformID(ec *ErrorContext, dev *Device) uint16 {
	return deviceField(ec, dev, func(d *Device) uint16 { return d.PlatformID })
}

// DeviceID returns the device id of dev
func DeviceID(ec *ErrorContext, dev *Device) uint16 {
	return deviceField(ec, dev, func(d *Device) uint16 { return d.DeviceID })
}

// DeviceName returns the name of dev
func DeviceName(ec *ErrorContext, dev *Device) string {
	return deviceField(ec, dev, func(d *Device) string { return d.Name })
}

// DeviceVendor returns the vendor of dev
func DeviceVendor(ec *ErrorContext, dev *Device) string {
	return deviceField(ec, dev, func(d *Device) string { return d.Vendor })
}

// DeviceCompilerAvailable reports whether dev can compile the search program
func DeviceCompilerAvailable(ec *ErrorContext, dev *Device) bool {
	return deviceField(ec, dev, func(d *Device) bool { return d.CompilerAvailable })
}

// DeviceMemoryAvailable returns the global memory of dev in bytes
func DeviceMemoryAvailable(ec *ErrorContext, dev *Device) uint64 {
	return deviceField(ec, dev, func(d *Device) uint64 { return d.MemoryAvailable })
}

// DeviceMaximumAllocSize returns the largest single allocation of dev in bytes
func DeviceMaximumAllocSize(ec *ErrorContext, dev *Device) uint64 {
	return deviceField(ec, dev, func(d *Device) uint64 { return d.MaxAllocSize })
}
