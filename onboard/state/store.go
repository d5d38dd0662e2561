package state

import (
	"sort"
	"sync"

	gwerrors "github.com/CodedInternet/gateway/onboard/errors"
)

// Store is a concurrent map from string keys to tagged values. Every read
// and write is atomic with respect to the others.
type Store struct {
	lock sync.RWMutex
	m    map[string]Value
}

func NewStore() *Store {
	return &Store{m: make(map[string]Value)}
}

func Set[T Scalar](s *Store, key string, v T) {
	s.lock.Lock()
	s.m[key] = ValueOf(v)
	s.lock.Unlock()
}

// Get reads key as T, failing with KeyNotFoundError or TypeMismatchError.
func Get[T Scalar](s *Store, key string) (T, error) {
	s.lock.RLock()
	val, ok := s.m[key]
	s.lock.RUnlock()
	return unpack[T](key, val, ok)
}

// TryGet is Get with the error collapsed to ok=false.
func TryGet[T Scalar](s *Store, key string) (T, bool) {
	v, err := Get[T](s, key)
	return v, err == nil
}

// Swap atomically replaces the value at key and returns the old one. The
// key must already hold a T.
func Swap[T Scalar](s *Store, key string, v T) (T, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	old, err := unpack[T](key, s.m[key], hasKey(s.m, key))
	if err != nil {
		return old, err
	}
	s.m[key] = ValueOf(v)
	return old, nil
}

func hasKey(m map[string]Value, key string) bool {
	_, ok := m[key]
	return ok
}

func unpack[T Scalar](key string, val Value, ok bool) (T, error) {
	var zero T
	if !ok {
		return zero, gwerrors.KeyNotFoundError{Key: key}
	}
	v, match := val.v.(T)
	if !match {
		return zero, gwerrors.TypeMismatchError{Key: key, Want: typeNameOf[T](), Have: val.typeName()}
	}
	return v, nil
}

func (s *Store) TypeOf(key string) Kind {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.m[key].Kind()
}

func (s *Store) Has(key string) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return hasKey(s.m, key)
}

// Snapshot copies every key. Lifecycle values are rendered by name.
func (s *Store) Snapshot() map[string]any {
	s.lock.RLock()
	defer s.lock.RUnlock()

	out := make(map[string]any, len(s.m))
	for k, v := range s.m {
		if l, ok := v.v.(Lifecycle); ok {
			out[k] = l.String()
			continue
		}
		out[k] = v.v
	}
	return out
}

func (s *Store) Keys() []string {
	s.lock.RLock()
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	s.lock.RUnlock()

	sort.Strings(keys)
	return keys
}
