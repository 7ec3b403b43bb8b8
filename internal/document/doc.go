// Package document owns the lifecycle of the process's managed document store.
//
// A Manager moves through four states:
//
//	Closed --UseManagedDocument--> Opening --success--> Open
//	                                       \--failure--> Failed
//
// Open and Failed are terminal for the open sequence: Failed is never
// retried automatically, and Open only leaves through Close.
//
// Callers that need the store register with AddStorageCompletionHandler or
// Ready. Each registration is notified exactly once with a Result, in
// registration order. Handlers registered before the store reaches a
// terminal state are queued until it does; later ones are handed to the
// notifier at once and may start before AddStorageCompletionHandler
// returns. Notifications run on the manager's notification goroutine,
// never on the caller's goroutine and never under the manager's lock, so
// handlers may call back into the Manager.
//
// SaveContext persists the change-tracking context of an Open store and
// fails with ErrNotReady in every other state without touching the engine.
package document
