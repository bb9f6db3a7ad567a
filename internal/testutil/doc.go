// Package testutil provides scripted collaborators for relay tests: a
// transport client whose replies are queued up front and an output that
// records everything the relay emits.
package testutil
