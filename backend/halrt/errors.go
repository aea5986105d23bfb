// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halrt

import "errors"

// Backend errors.
var (
	// ErrNilDevice is returned when creating a backend without a device.
	ErrNilDevice = errors.New("halrt: device is nil")

	// ErrNoHALDevice is returned when a device provider does not expose a
	// HAL device.
	ErrNoHALDevice = errors.New("halrt: provider has no HAL device")

	// ErrInvalidSPIRV is returned for missing or malformed shader bytecode.
	ErrInvalidSPIRV = errors.New("halrt: invalid SPIR-V")

	// ErrForeignObject is returned when a layout, library or cache was
	// created by a different backend.
	ErrForeignObject = errors.New("halrt: object belongs to another backend")

	// ErrLayoutMismatch is returned when linking libraries created with
	// different layouts.
	ErrLayoutMismatch = errors.New("halrt: layout mismatch")

	// ErrDestroyed is returned when a destroyed object is used.
	ErrDestroyed = errors.New("halrt: object destroyed")

	// ErrRecursionDepth is returned when the requested recursion depth
	// exceeds the backend limit.
	ErrRecursionDepth = errors.New("halrt: recursion depth exceeds limit")

	// ErrInvalidGroup is returned for a malformed shader group.
	ErrInvalidGroup = errors.New("halrt: invalid shader group")
)
