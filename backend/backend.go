package backend

import (
	"errors"
	"sync"

	"github.com/gogpu/wgpu/hal"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNilDevice is returned when a factory produces no device.
	ErrNilDevice = errors.New("backend: factory returned nil device")
)

// Device is an opened HAL device.
//
// The device owns the instance it was opened from. Close releases both
// and must be called once every pipeline object created on the device
// has been destroyed.
type Device struct {
	// Name is the backend identifier the device was opened with.
	Name string

	// HAL is the device used to create shader modules and layouts.
	HAL hal.Device

	release func()
	once    sync.Once
}

// NewDevice wraps an opened HAL device. release is called once by Close
// and may be nil.
func NewDevice(name string, device hal.Device, release func()) *Device {
	return &Device{Name: name, HAL: device, release: release}
}

// Close releases the device. It is safe to call more than once.
func (d *Device) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		if d.release != nil {
			d.release()
		}
	})
}
