package raypipe

import "errors"

var (
	// ErrTooManyMaterials is returned when more than MaxMaterials materials
	// are configured. The activation state is a 64-bit mask.
	ErrTooManyMaterials = errors.New("raypipe: too many materials (max 64)")

	// ErrDuplicateMaterial is returned when two materials share an ID.
	ErrDuplicateMaterial = errors.New("raypipe: duplicate material id")

	// ErrNilCharacteristics is returned when the manager is created without
	// characteristics.
	ErrNilCharacteristics = errors.New("raypipe: characteristics are nil")

	// ErrNilLayout is returned when characteristics are created without a layout.
	ErrNilLayout = errors.New("raypipe: pipeline layout is nil")

	// ErrInvalidRayType is returned when a ray type is outside the
	// characteristics' ray-type count or configured twice.
	ErrInvalidRayType = errors.New("raypipe: invalid ray type")

	// ErrInvalidHitgroup is returned for a hitgroup whose shaders do not
	// match its material type or stage slots.
	ErrInvalidHitgroup = errors.New("raypipe: invalid hitgroup")

	// ErrNoRayGen is returned when the manager is created without a
	// ray generation shader.
	ErrNoRayGen = errors.New("raypipe: ray generation shader is required")

	// ErrNilBackend is returned when the manager is created without a backend.
	ErrNilBackend = errors.New("raypipe: backend is nil")

	// ErrHitgroupCount is returned when a built pipeline does not contain
	// exactly the hitgroups its mapping expects.
	ErrHitgroupCount = errors.New("raypipe: unexpected hitgroup count")

	// ErrSchedulerClosed is the failure recorded on a deferred value whose
	// work could not be submitted.
	ErrSchedulerClosed = errors.New("raypipe: scheduler rejected task")
)
