package coordinator

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/watercv/syncvalid/internal/fingerprint"
)

// arrival is one participant's submission for the live rendezvous slot.
type arrival struct {
	instanceID  int32
	fingerprint string
}

// Rendezvous is the coordinator-side record for the current sync point: its
// id, the count of participants that have arrived, and each arrived
// participant's fingerprint (spec §3, "Rendezvous slot"). At most one live
// slot exists at a time (I1); it resets whenever a submission arrives for a
// different sync-point id than the live one (spec §4.4).
type Rendezvous struct {
	syncPoint   int64
	initialized bool
	arrivals    []arrival
}

// NewRendezvous returns an empty, uninitialized rendezvous slot.
func NewRendezvous() *Rendezvous {
	return &Rendezvous{}
}

// Submit records instanceID's fingerprint for syncPoint, resetting the live
// slot first if syncPoint differs from the one currently in progress. If
// instanceID has already submitted for this slot (a retransmission), its
// entry is replaced rather than double-counted.
func (rv *Rendezvous) Submit(instanceID int32, syncPoint int64, fp string) {
	if !rv.initialized || rv.syncPoint != syncPoint {
		rv.syncPoint = syncPoint
		rv.initialized = true
		rv.arrivals = rv.arrivals[:0]
	}

	idx := slices.IndexFunc(rv.arrivals, func(a arrival) bool { return a.instanceID == instanceID })
	if idx >= 0 {
		rv.arrivals[idx].fingerprint = fp
		return
	}
	rv.arrivals = append(rv.arrivals, arrival{instanceID: instanceID, fingerprint: fp})
}

// SyncPoint returns the id of the live slot.
func (rv *Rendezvous) SyncPoint() int64 { return rv.syncPoint }

// Arrived returns how many distinct participants have submitted for the live slot.
func (rv *Rendezvous) Arrived() int { return len(rv.arrivals) }

// Ready reports whether exactly n participants have arrived (I4: broadcast
// happens iff arrived == N).
func (rv *Rendezvous) Ready(n int) bool { return len(rv.arrivals) == n }

// Outcome is the result of comparing every arrived fingerprint against the
// first arrival's, per spec §4.4.
type Outcome struct {
	Passed bool
	// MismatchDetails is the human-readable "Sync point s: Instance
	// i='fi' vs Instance j='fj'" string for the first failing pair. Empty
	// when Passed is true.
	MismatchDetails string
	// FirstInstanceID/FirstFingerprint identify the slot's first arrival,
	// exposed so the server can build the N==2 peer-fingerprint variant
	// of MismatchDetails sent to each client.
	FirstInstanceID  int32
	FirstFingerprint string
}

// Compare evaluates the live slot's arrivals against each other, comparing
// every fingerprint to the first arrival's using fingerprint.Compare.
// Richer N>2 diagnostics than "first failing pair" are out of scope: the
// core does not attempt to reconcile mismatches.
func (rv *Rendezvous) Compare() Outcome {
	out := Outcome{Passed: true}
	if len(rv.arrivals) == 0 {
		return out
	}
	first := rv.arrivals[0]
	out.FirstInstanceID = first.instanceID
	out.FirstFingerprint = first.fingerprint

	for _, a := range rv.arrivals[1:] {
		if fingerprint.Compare(first.fingerprint, a.fingerprint) {
			continue
		}
		out.Passed = false
		out.MismatchDetails = fmt.Sprintf(
			"Sync point %d: Instance %d='%s' vs Instance %d='%s'",
			rv.syncPoint, first.instanceID, first.fingerprint, a.instanceID, a.fingerprint,
		)
		return out
	}
	return out
}

// FingerprintOf returns the fingerprint submitted by instanceID in the live
// slot, if present.
func (rv *Rendezvous) FingerprintOf(instanceID int32) (string, bool) {
	idx := slices.IndexFunc(rv.arrivals, func(a arrival) bool { return a.instanceID == instanceID })
	if idx < 0 {
		return "", false
	}
	return rv.arrivals[idx].fingerprint, true
}

// InstanceIDs returns the instance ids that have arrived, in arrival order.
func (rv *Rendezvous) InstanceIDs() []int32 {
	ids := make([]int32, len(rv.arrivals))
	for i, a := range rv.arrivals {
		ids[i] = a.instanceID
	}
	return ids
}
