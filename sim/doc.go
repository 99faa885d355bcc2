// Package sim provides the core coordination and simulation engine for
// the warehouse.
//
// # Reading Guide
//
// Start with these three files to understand the engine kernel:
//   - types.go: the record types (Product, AGV, Task, Order) and their state machines
//   - store.go: the shared state store and its named, precondition-checked transitions
//   - coordinator.go: the tick loop, completion event heap, and dispatch cycle
//
// # Architecture
//
// Every state change is a Store transition; the components around the
// store are stateless views or policies over it:
//   - taskqueue.go: dispatch-ordered view of Pending tasks
//   - dispatcher.go: greedy task/AGV matching and the failure/retry policy
//   - monitor.go: inventory threshold sweep raising Restock tasks
//   - orders.go: order decomposition into Pick tasks and settlement
//   - gateway.go: escalation of ambiguous decisions to an advisory oracle
//
// Sub-packages hold the pieces with no dependency on the engine itself:
//   - sim/oracle/: the oracle client interface, HTTP implementation, and test stub
//   - sim/journal/: bounded transition journal with optional JSONL sink
//   - sim/persist/: SQLite snapshots of the full record set
//
// The oracle is strictly advisory: every escalation has a deterministic
// fallback, so a run with the oracle disabled is still fully functional
// and reproducible from its seed.
package sim
