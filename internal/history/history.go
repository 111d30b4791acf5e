// Package history provides a bounded undo/redo envelope around a value.
package history

// DefaultLimit is the maximum number of past entries kept.
const DefaultLimit = 100

// Class tells the history manager what kind of edit produced a new value.
type Class int

const (
	// UserEdit is a deliberate change by the writer. It is recorded.
	UserEdit Class = iota
	// AsyncLifecycle is bookkeeping of an asynchronous operation
	// (pending, fulfilled, rejected). It is never recorded.
	AsyncLifecycle
	// EphemeralUI is a UI-only change such as a selection. It is never recorded.
	EphemeralUI
)

func (c Class) String() string {
	switch c {
	case UserEdit:
		return "user-edit"
	case AsyncLifecycle:
		return "async-lifecycle"
	case EphemeralUI:
		return "ephemeral-ui"
	default:
		return "unknown"
	}
}

// Phase is the stage of an asynchronous operation.
type Phase int

const (
	PhaseNone Phase = iota
	PhasePending
	PhaseFulfilled
	PhaseRejected
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseFulfilled:
		return "fulfilled"
	case PhaseRejected:
		return "rejected"
	default:
		return ""
	}
}

// Tag classifies an action at the point it is created.
type Tag struct {
	Class Class
	Phase Phase
}

// Edit is the tag of a substantive user edit.
func Edit() Tag { return Tag{Class: UserEdit} }

// Lifecycle is the tag of an asynchronous operation phase.
func Lifecycle(p Phase) Tag { return Tag{Class: AsyncLifecycle, Phase: p} }

// Ephemeral is the tag of a UI-only action.
func Ephemeral() Tag { return Tag{Class: EphemeralUI} }

// Substantive reports whether the tagged action belongs in the undo history.
func (t Tag) Substantive() bool {
	return t.Class == UserEdit
}

// Envelope is a read-only view of the history.
// Past is ordered oldest first; Future is ordered next-redo first.
type Envelope[T any] struct {
	Past    []T
	Present T
	Future  []T
}

// Manager holds past, present and future values.
// It is not safe for concurrent use; the owner serialises access.
type Manager[T any] struct {
	past    []T
	present T
	future  []T
	limit   int
}

// New creates a manager whose present is initial and whose stacks are empty.
func New[T any](initial T, limit int) *Manager[T] {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Manager[T]{present: initial, limit: limit}
}

// Present returns the current value.
func (m *Manager[T]) Present() T {
	return m.present
}

// Limit returns the maximum past length.
func (m *Manager[T]) Limit() int {
	return m.limit
}

// Apply installs next as the present value. Substantive edits push the old
// present onto past (evicting the oldest beyond the limit) and clear future.
// Other edits replace the present in place.
func (m *Manager[T]) Apply(tag Tag, next T) {
	if !tag.Substantive() {
		m.present = next
		return
	}

	m.past = append(m.past, m.present)
	if over := len(m.past) - m.limit; over > 0 {
		m.past = append(m.past[:0:0], m.past[over:]...)
	}
	m.present = next
	m.future = nil
}

// Undo moves the most recent past value into present. It reports whether
// anything changed; an empty past is a no-op.
func (m *Manager[T]) Undo() bool {
	if len(m.past) == 0 {
		return false
	}
	last := len(m.past) - 1
	previous := m.past[last]
	m.past = m.past[:last]
	m.future = append([]T{m.present}, m.future...)
	m.present = previous
	return true
}

// Redo is the inverse of Undo.
func (m *Manager[T]) Redo() bool {
	if len(m.future) == 0 {
		return false
	}
	next := m.future[0]
	m.future = m.future[1:]
	m.past = append(m.past, m.present)
	m.present = next
	return true
}

// Collapse replaces the present and clears both stacks. It marks a new
// document boundary (reset, import, snapshot restore) that undo cannot cross.
func (m *Manager[T]) Collapse(present T) {
	m.past = nil
	m.future = nil
	m.present = present
}

// CanUndo reports whether Undo would change anything.
func (m *Manager[T]) CanUndo() bool { return len(m.past) > 0 }

// CanRedo reports whether Redo would change anything.
func (m *Manager[T]) CanRedo() bool { return len(m.future) > 0 }

// Envelope returns a copy of the current history.
func (m *Manager[T]) Envelope() Envelope[T] {
	return Envelope[T]{
		Past:    append([]T{}, m.past...),
		Present: m.present,
		Future:  append([]T{}, m.future...),
	}
}
