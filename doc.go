// Package persist keeps a single in-memory value synchronized with a
// key-value storage adapter.
//
// A Persist[T] owns one key. It loads the stored value when constructed,
// writes the value back on every change, and notifies watchers after each
// successful write:
//
//	theme, err := persist.New[string]("theme", persist.WithDefault("os"))
//	if err != nil {
//		return err
//	}
//	theme.Get()          // "os"
//	theme.Set("light")   // persisted immediately
//
// Values are stored as JSON text. Any JSON-representable value round trips
// losslessly; richer types keep only their exported structural fields. When
// T is an interface, supply a TypeHint so the stored data can be turned back
// into a concrete implementation.
//
// # Undefined values
//
// A Persist starts out undefined when nothing is stored and no default is
// configured. Unset returns it to that state and removes the stored slot, so
// an undefined value is never present in storage. Get on an undefined value
// returns the default, or the zero value of T.
//
// # Mutating values in place
//
// Go cannot intercept writes to an arbitrary value, so in-place changes go
// through guarded mutators: Update, Mutate, Invoke, SetProperty, and the
// container helpers Push, RemoveAt, Put and Delete. Each one applies the
// change to the owned value and saves before returning.
//
// Only changes made through these entry points are observed. A nested map or
// slice obtained from Get or Property is the live object, and changing it
// directly does not save anything. Call Save afterwards to re-sync, or route
// the change through Update.
//
// # Concurrency
//
// A Persist is not safe for concurrent use. Each key is expected to have a
// single writer; two values bound to the same key on the same adapter
// overwrite each other with no conflict detection.
package persist
