// Package knode defines the contract every node of a kflow graph implements.
//
// A node is one of three kinds: a Source produces operations, a Processor
// transforms them and a Sink consumes them. Each kind is split into a
// stateless factory, which describes the node's ports and schemas and is
// registered with the graph, and a runtime instance, which the factory builds
// when the executor starts and which does the actual work.
//
// Runtime instances are driven by exactly one goroutine and never need to be
// safe for concurrent use. Every Processor and Sink gets an open transaction on
// the node's private state environment with each call to Process; everything
// written to it becomes durable at the next Commit, together with the node's
// checkpoint metadata.
package knode
