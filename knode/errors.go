package knode

import "errors"

var (
	ErrMissingInputSchema = errors.New("missing input schema")
	ErrInvalidSchema      = errors.New("invalid schema")
	ErrInvalidRecord      = errors.New("invalid record")
	ErrInvalidPortHandle  = errors.New("invalid port handle")

	// ErrSourceExhausted is returned by Source.Next once the source has no
	// more data. It is not a failure.
	ErrSourceExhausted = errors.New("source exhausted")
)
