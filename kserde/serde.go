// Package kserde holds serializer/deserializer pairs used to store typed values
// in byte-oriented state.
//
// Deserializers receive a byte slice that may be a borrowed view into storage
// memory. Unless documented otherwise (see BytesView) they return values that
// do not alias their input.
package kserde

type Serde[T any] struct {
	Serializer   Serializer[T]
	Deserializer Deserializer[T]
}

type Serializer[T any] func(T) ([]byte, error)

type Deserializer[T any] func([]byte) (T, error)
