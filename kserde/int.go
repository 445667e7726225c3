package kserde

import (
	"encoding/binary"
	"fmt"
)

// Int64Serializer serializes int64 to big-endian bytes
var Int64Serializer = func(data int64) ([]byte, error) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(data))
	return buf, nil
}

// Int64Deserializer deserializes big-endian bytes to int64
var Int64Deserializer = func(data []byte) (int64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("int64 deserialization requires exactly 8 bytes, got %d", len(data))
	}
	return int64(binary.BigEndian.Uint64(data)), nil
}

var Int64 = Serde[int64]{
	Serializer:   Int64Serializer,
	Deserializer: Int64Deserializer,
}

// Uint64Serializer serializes uint64 to big-endian bytes, so that encoded
// offsets sort in numeric order.
var Uint64Serializer = func(data uint64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(nil, data), nil
}

var Uint64Deserializer = func(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("uint64 deserialization requires exactly 8 bytes, got %d", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

var Uint64 = Serde[uint64]{
	Serializer:   Uint64Serializer,
	Deserializer: Uint64Deserializer,
}
