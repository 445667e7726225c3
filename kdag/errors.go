package kdag

import "errors"

var (
	ErrNodeAlreadyExists    = errors.New("node already exists")
	ErrNodeNotFound         = errors.New("node not found")
	ErrCycleDetected        = errors.New("cycle detected in DAG")
	ErrInvalidNodeID        = errors.New("invalid node ID")
	ErrInvalidNodeType      = errors.New("invalid node type")
	ErrInvalidTopology      = errors.New("invalid topology")
	ErrPortAlreadyConnected = errors.New("input port already connected")
	ErrSchemaPropagation    = errors.New("schema propagation failed")
)
