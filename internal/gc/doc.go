// Package gc implements retention enforcement for the configuration store.
//
// A single coordinator goroutine drives a four-phase cycle over a mailbox of
// messages: it rests between cycles, scans the repositories for records over
// the retention cap, and compacts the survivors' garbage away. Writers
// announce every successful store to the coordinator and receive a one-shot
// completion handle; during a scan the announcement subtracts the record
// from the pending deletion set, and during a compaction a conflicting
// announcement is held open until the conflicting delete has finished. A
// record a writer has been acknowledged for is never deleted by the cycle
// that acknowledged it.
//
// Collection is best effort: scan and compaction errors are logged and
// swallowed, and whatever garbage survives is found again by the next cycle.
package gc
