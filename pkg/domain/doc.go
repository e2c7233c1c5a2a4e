/*
Package domain contains the core types shared by every part of the rehearsal engine.

It is kept pure and free of I/O or persistence, following Hexagonal Architecture
principles.

# Key Entities

  - Message: Headers plus payload exchanged with endpoints and correlation queues.
  - TestResult: The immutable outcome of one test run.
  - LifecycleHooks: Callbacks fired around tests and actions.
  - Errors: Sentinel kinds (ErrTimeout, ErrValidationFailed, ...) and typed errors
    (ActionError, ValidationError, AggregateError) matched with errors.Is/As.
*/
package domain
