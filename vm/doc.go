// Package vm implements the core query-processing physical operators:
// the dataflow state machines that turn streams of PLUS/MINUS/HEARTBEAT
// elements into other streams of elements, per spec.md §4.7. Every
// operator in this package implements Operator and shares the same
// stall-recovery and heartbeat-generation contract described on
// Operator itself.
package vm
