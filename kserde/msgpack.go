package kserde

import "github.com/vmihailenco/msgpack/v5"

func MsgpackSerializer[T any]() Serializer[T] {
	return func(t T) ([]byte, error) {
		return msgpack.Marshal(t)
	}
}

func MsgpackDeserializer[T any]() Deserializer[T] {
	return func(b []byte) (T, error) {
		var res T
		if err := msgpack.Unmarshal(b, &res); err != nil {
			return *new(T), err
		}
		return res, nil
	}
}

func Msgpack[T any]() Serde[T] {
	return Serde[T]{
		Serializer:   MsgpackSerializer[T](),
		Deserializer: MsgpackDeserializer[T](),
	}
}
