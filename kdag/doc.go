// Package kdag holds the graph model of a kflow pipeline.
//
// A Dag is made of nodes, each identified by a NodeHandle and wrapping the
// factory of a source, processor or sink, and of edges connecting an output
// port of one node to an input port of another:
//
//	dag := kdag.New()
//	gen := kdag.NewNodeHandle("generator")
//	out := kdag.NewNodeHandle("sink")
//	_ = dag.AddNode(kdag.SourceNode(generator.New(100)), gen)
//	_ = dag.AddNode(kdag.SinkNode(counting.New()), out)
//	_ = dag.Connect(kdag.NewEndpoint(gen, knode.DefaultPortHandle), kdag.NewEndpoint(out, knode.DefaultPortHandle))
//
// All structural checks happen when the graph is built. Connect rejects
// undeclared ports, a second connection into one input port and any edge
// that would close a cycle, so a Dag can never hold an invalid topology. One
// output port may feed any number of input ports.
//
// Schemas are never declared on processors or sinks. PropagateSchemas derives
// them by walking the graph in topological order, starting from the schemas
// the sources declare.
package kdag
