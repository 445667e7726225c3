package kserde

// BytesSerializer passes the slice through unchanged.
var BytesSerializer = func(data []byte) ([]byte, error) {
	return data, nil
}

// BytesDeserializer returns an owned copy of data.
var BytesDeserializer = func(data []byte) ([]byte, error) {
	res := make([]byte, len(data))
	copy(res, data)
	return res, nil
}

// BytesView returns data itself. The result is only valid as long as data is,
// which for storage reads means the duration of the View callback.
var BytesView = func(data []byte) ([]byte, error) {
	return data, nil
}

var Bytes = Serde[[]byte]{
	Serializer:   BytesSerializer,
	Deserializer: BytesDeserializer,
}
