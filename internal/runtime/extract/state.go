package extract

import (
	"reflect"

	errspkg "github.com/issuu/kanin/internal/runtime/errors"
)

// StateStore holds app-level values handlers can extract with State. One value
// per type; values are added during app construction and the store is sealed
// before the consumer loop starts, after which reads need no synchronization.
type StateStore struct {
	values map[reflect.Type]any
	sealed bool
}

// NewStateStore returns an empty, unsealed store.
func NewStateStore() *StateStore {
	return &StateStore{values: make(map[reflect.Type]any)}
}

// Seal freezes the store. Further PutState calls fail.
func (s *StateStore) Seal() { s.sealed = true }

// PutState adds a value to the store. Registering two values of the same type
// is a configuration error; wrap one of them in a named type instead.
func PutState[T any](s *StateStore, value T) error {
	if s.sealed {
		return errspkg.ErrStateSealed
	}
	key := typeKey[T]()
	if _, exists := s.values[key]; exists {
		return errspkg.ErrDuplicateStateType
	}
	s.values[key] = value
	return nil
}

// StateOf retrieves the stored value of type T.
func StateOf[T any](s *StateStore) (T, bool) {
	v, ok := s.values[typeKey[T]()]
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}
