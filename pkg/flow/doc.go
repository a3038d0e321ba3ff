// Package flow implements the computation-graph primitives and the
// train/apply/label composition algebra of the pipeline framework.
//
// A pipeline under construction is a directed acyclic graph of nodes with
// fixed-arity ports. Workers wrap actor specifications and may be forked into
// several wiring-independent handles sharing one persisted-state identity,
// which is how training through one handle and applying through another
// observe the same learned parameters. Futures are placeholder vertices used
// to wire a path before its producer is known; they become transparent once
// bound and are a hard error at compile time otherwise.
//
// Paths are single-publisher views over the graph, Segments are the
// train/apply/label triple accumulated by operator composition, and a
// Composition chains expanded segments behind a common source. All of these
// exist only during the build phase; the compiler lowers them into an
// ordered symbol sequence and the graph is discarded.
//
// Composition is pure: every algebra operation returns new views and never
// mutates its receiver. Structural misuse (arity violations, duplicate
// subscriptions, label leakage into the apply path) is reported through the
// sentinel errors in this package, always synchronously during composition
// or compilation and never at execution time.
package flow
