package kserde

// StringDeserializer copies data into a new string, so the result never
// aliases a borrowed view.
var StringDeserializer = func(data []byte) (string, error) {
	return string(data), nil
}

var StringSerializer = func(data string) ([]byte, error) {
	return []byte(data), nil
}

var String = Serde[string]{
	Serializer:   StringSerializer,
	Deserializer: StringDeserializer,
}
