// Package monitoring provides the diagnostic logger handed to trips, sensors
// and processors.
package monitoring

import "log"

// Logf is a printf-style diagnostic logger. Components receive one explicitly
// at construction; nothing in the runtime logs through a package global.
type Logf func(format string, v ...any)

// Default logs through log.Printf.
func Default(format string, v ...any) {
	log.Printf(format, v...)
}

// Discard drops every message.
func Discard(string, ...any) {}

// Prefixed returns a logger that prepends prefix to every message. A nil base
// falls back to Default.
func Prefixed(base Logf, prefix string) Logf {
	if base == nil {
		base = Default
	}
	return func(format string, v ...any) {
		base(prefix+format, v...)
	}
}

// OrDefault returns l, or Default when l is nil.
func OrDefault(l Logf) Logf {
	if l == nil {
		return Default
	}
	return l
}
