package raypipe

import (
	"sync/atomic"
)

// SlotState is the state of a library slot.
type SlotState uint8

const (
	// SlotEmpty means no build has been scheduled.
	SlotEmpty SlotState = iota

	// SlotBuilding means a build is running.
	SlotBuilding

	// SlotReady means the library is available.
	SlotReady

	// SlotFailed means the build failed. The slot stays failed until an
	// invalidation clears it.
	SlotFailed
)

// String returns the slot state name.
func (s SlotState) String() string {
	switch s {
	case SlotEmpty:
		return "Empty"
	case SlotBuilding:
		return "Building"
	case SlotReady:
		return "Ready"
	case SlotFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// sharedLibrary is a reference-counted Library. The manager's slot holds
// one reference and every link task holds one while it runs; the last
// release hands the library to the disposer.
type sharedLibrary struct {
	lib      Library
	refs     atomic.Int32
	disposer Disposer
}

func newSharedLibrary(lib Library, disposer Disposer) *sharedLibrary {
	s := &sharedLibrary{lib: lib, disposer: disposer}
	s.refs.Store(1)
	return s
}

func (s *sharedLibrary) retain() {
	s.refs.Add(1)
}

func (s *sharedLibrary) release() {
	switch n := s.refs.Add(-1); {
	case n == 0:
		s.disposer.DisposeWhenSafe(s.lib)
	case n < 0:
		panic("raypipe: pipeline library released too many times")
	}
}

// librarySlot holds the base library or one material library.
type librarySlot struct {
	lib      *Deferred[*sharedLibrary]
	buildID  string
	reported bool
}

func (s *librarySlot) state() SlotState {
	if s.lib == nil {
		return SlotEmpty
	}
	switch s.lib.State() {
	case Ready:
		return SlotReady
	case Failed:
		return SlotFailed
	default:
		return SlotBuilding
	}
}

// poll returns the library if it is ready. A failure is logged the first
// time it is observed.
func (s *librarySlot) poll(kind string, slot int) (*sharedLibrary, bool) {
	lib, state, err := s.lib.Poll()
	switch state {
	case Ready:
		return lib, true
	case Failed:
		if !s.reported {
			s.reported = true
			Logger().Warn("pipeline library build failed",
				"library", kind, "slot", slot, "build", s.buildID, "err", err)
		}
	}
	return nil, false
}

// drop releases the slot's reference, now or when a running build finishes.
func (s *librarySlot) drop() {
	if s.lib != nil {
		s.lib.discard(func(l *sharedLibrary) { l.release() })
	}
	*s = librarySlot{}
}
