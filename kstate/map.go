package kstate

import (
	"fmt"

	"github.com/birdayz/kflow/kserde"
)

// Map is a typed view on a key space of a Reader or Transaction. Keys and
// values are converted with serdes.
//
// Two read paths exist. Get decodes the value into an owned V that may be
// kept indefinitely. View decodes with the given borrowing deserializer and
// hands the result to a callback; whatever it decoded may alias storage
// memory and is only valid for the duration of that callback.
type Map[K, V any] struct {
	prefix []byte
	key    kserde.Serde[K]
	value  kserde.Serde[V]
}

// NewMap creates a map stored under prefix.
func NewMap[K, V any](prefix string, key kserde.Serde[K], value kserde.Serde[V]) *Map[K, V] {
	return &Map[K, V]{prefix: []byte(prefix), key: key, value: value}
}

func (m *Map[K, V]) encodeKey(k K) ([]byte, error) {
	kb, err := m.key.Serializer(k)
	if err != nil {
		return nil, fmt.Errorf("encode key: %w", err)
	}
	res := make([]byte, 0, len(m.prefix)+len(kb))
	res = append(res, m.prefix...)
	return append(res, kb...), nil
}

// Get returns an owned value.
func (m *Map[K, V]) Get(r Reader, k K) (V, bool, error) {
	var zero V
	key, err := m.encodeKey(k)
	if err != nil {
		return zero, false, err
	}
	raw, ok, err := r.Get(key)
	if err != nil || !ok {
		return zero, ok, err
	}
	v, err := m.value.Deserializer(raw)
	if err != nil {
		return zero, false, fmt.Errorf("decode value: %w", err)
	}
	return v, true, nil
}

// View decodes the stored value with borrow and passes it to fn. The decoded
// value must not be retained after fn returns.
func View[K, V, B any](m *Map[K, V], r Reader, k K, borrow kserde.Deserializer[B], fn func(B) error) (bool, error) {
	key, err := m.encodeKey(k)
	if err != nil {
		return false, err
	}
	return r.View(key, func(raw []byte) error {
		b, err := borrow(raw)
		if err != nil {
			return fmt.Errorf("decode value: %w", err)
		}
		return fn(b)
	})
}

func (m *Map[K, V]) Contains(r Reader, k K) (bool, error) {
	key, err := m.encodeKey(k)
	if err != nil {
		return false, err
	}
	return r.Contains(key)
}

func (m *Map[K, V]) Put(txn Transaction, k K, v V) error {
	key, err := m.encodeKey(k)
	if err != nil {
		return err
	}
	value, err := m.value.Serializer(v)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	return txn.Put(key, value)
}

func (m *Map[K, V]) Delete(txn Transaction, k K) error {
	key, err := m.encodeKey(k)
	if err != nil {
		return err
	}
	return txn.Delete(key)
}

// Count returns the number of entries in the map.
func (m *Map[K, V]) Count(r Reader) (int, error) {
	return CountScan(r, m.prefix)
}
