/*
Package ports defines the driven ports (interfaces) of the rehearsal engine.

These interfaces decouple test execution from the infrastructure that keeps
its results or coordinates concurrent runs.

# Key Interfaces

  - ResultStore: persists finalized test results (memory or Redis).
  - Locker: serializes runs of the same test across processes.

RunResultStoreContract is a reusable suite every ResultStore adapter runs
in its own tests.
*/
package ports
