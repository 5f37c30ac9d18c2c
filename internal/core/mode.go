// Package core composes the lower layers into the two things chatd
// can do: serve the chat protocol or connect to a server as a line
// client.
//
// Architecture layers (bottom → top):
//
//	transport  →  session/command/watchdog  →  server  →  core  →  cmd (CLI)
//	transport  →  capability                          →  core  →  cmd (CLI)
package core

import "context"

// Mode is one complete operational mode of chatd.  Each mode owns its
// lifecycle from startup to teardown and returns when ctx is cancelled
// or its work is done.
type Mode interface {
	Run(ctx context.Context) error
}
