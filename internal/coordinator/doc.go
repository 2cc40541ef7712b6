// Package coordinator implements the rendezvous server that runs inside
// instance 0's process.
//
// # Overview
//
// The coordinator accepts a TCP or Unix-domain connection from every
// participant, tracks which instance id owns which connection (Registry),
// and performs a barrier-style fingerprint comparison every time all N
// participants have submitted for the current sync point (Rendezvous).
//
// # Architecture
//
//	┌───────────────────────────────────────┐
//	│              Server                    │
//	├───────────────────────────────────────┤
//	│  acceptLoop  -> acceptCh               │
//	│  readLoop(conn) x N -> msgCh           │
//	│                                        │
//	│  run() [single goroutine]              │
//	│    selects on acceptCh / msgCh / ctx   │
//	│    owns Registry and Rendezvous        │
//	└───────────────────────────────────────┘
//
// Exactly one goroutine, run, ever touches Registry or Rendezvous, so
// neither needs internal locking: every other goroutine only decodes
// wire.Message values and forwards them over a channel.
//
// # Concurrency
//
// Per-connection readLoop goroutines are the only other long-lived
// goroutines; they exit either on a decode error (peer disconnected) or
// when the dispatch loop's context is canceled, whichever happens first.
package coordinator
