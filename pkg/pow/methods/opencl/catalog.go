package opencl

import (
	"sync"

	"powengine/pkg/pow/core"
)

// Catalog is the device list captured from a Runtime
type Catalog struct {
	mu      sync.RWMutex
	devices []DeviceDescriptor
	closed  bool
}

// GetCatalog enumerates rt
func GetCatalog(rt Runtime) (*Catalog, error) {
	if rt == nil {
		return nil, core.ErrDeviceListInvalid
	}
	devices, err := rt.Devices()
	if err != nil {
		return nil, err
	}
	return &Catalog{devices: devices}, nil
}

func (c *Catalog) check() error {
	if c.closed {
		return core.ErrDeviceListInvalid
	}
	return nil
}

// Count returns the number of devices
func (c *Catalog) Count() (uint16, error) {
	if c == nil {
		return 0, core.ErrDeviceListInvalid
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.check(); err != nil {
		return 0, err
	}
	return uint16(len(c.devices)), nil
}

// Get returns device i
func (c *Catalog) Get(i uint16) (DeviceDescriptor, error) {
	if c == nil {
		return DeviceDescriptor{}, core.ErrDeviceListInvalid
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.check(); err != nil {
		return DeviceDescriptor{}, err
	}
	if int(i) >= len(c.devices) {
		return DeviceDescriptor{}, core.ErrInvalidIndex
	}
	return c.devices[i], nil
}

// GetByPlatformDevice finds a device by its platform and device ids
func (c *Catalog) GetByPlatformDevice(platform, device uint16) (DeviceDescriptor, error) {
	if c == nil {
		return DeviceDescriptor{}, core.ErrDeviceListInvalid
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.check(); err != nil {
		return DeviceDescriptor{}, err
	}
	for _, d := range c.devices {
		if d.PlatformID == platform && d.DeviceID == device {
			return d, nil
		}
	}
	return DeviceDescriptor{}, core.ErrDeviceNotFound
}

// Devices returns a copy of the list
func (c *Catalog) Devices() ([]DeviceDescriptor, error) {
	if c == nil {
		return nil, core.ErrDeviceListInvalid
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.check(); err != nil {
		return nil, err
	}
	return append([]DeviceDescriptor(nil), c.devices...), nil
}

// Close releases the list. Later calls fail with ErrDeviceListInvalid.
func (c *Catalog) Close() error {
	if c == nil {
		return core.ErrDeviceListInvalid
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices = nil
	c.closed = true
	return nil
}
