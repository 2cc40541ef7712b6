package main

import "fmt"

// SyncLabel is an illustrative enum of the sync points a molecular-dynamics
// instance might validate against its peers. It exists purely for log
// readability: the wire protocol identifies a sync point by the ordinal
// internal/validation.Context assigns it, never by this label, mirroring
// the reference implementation's sync_point_t enum (used only for logging
// in the original DMTCP-hosted source this module is descended from).
type SyncLabel int

const (
	SyncWorkStartBegin SyncLabel = iota
	SyncWorkStartEnd
	SyncForceComputePreRace
	SyncForceComputePostRace
	SyncPotentialEnergyPreRace
	SyncPotentialEnergyPostRace
	SyncStepEnd
)

func (l SyncLabel) String() string {
	switch l {
	case SyncWorkStartBegin:
		return "WORKSTART_BEGIN"
	case SyncWorkStartEnd:
		return "WORKSTART_END"
	case SyncForceComputePreRace:
		return "FORCE_COMPUTE_PRE_RACE"
	case SyncForceComputePostRace:
		return "FORCE_COMPUTE_POST_RACE"
	case SyncPotentialEnergyPreRace:
		return "POTENG_PRE_RACE"
	case SyncPotentialEnergyPostRace:
		return "POTENG_POST_RACE"
	case SyncStepEnd:
		return "STEP_END"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(l))
	}
}
