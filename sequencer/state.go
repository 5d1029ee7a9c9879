package sequencer

// Phase tags which variant of SequencerState the sequencer currently holds
// (spec §4.4, "States"). Variants are matched exhaustively wherever Phase
// is switched on, per the design note on tagged variants.
type Phase uint8

const (
	PhaseWaitingForSync Phase = iota
	PhaseWaitingForPayloadAttributes
	PhaseSorting
	PhaseSyncing
)

func (p Phase) String() string {
	switch p {
	case PhaseWaitingForSync:
		return "waiting_for_sync"
	case PhaseWaitingForPayloadAttributes:
		return "waiting_for_payload_attributes"
	case PhaseSorting:
		return "sorting"
	case PhaseSyncing:
		return "syncing"
	default:
		return "unknown"
	}
}

// State is the sequencer's current variant, carrying only the payload the
// active phase needs (spec §3, "SequencerState variants").
type State struct {
	Phase Phase

	// Sorting-only fields.
	Sorting *SortingData
	Frag    *FragSequence

	// Syncing-only field.
	SyncTarget uint64
}

func WaitingForSync() State { return State{Phase: PhaseWaitingForSync} }

func WaitingForPayloadAttributes() State { return State{Phase: PhaseWaitingForPayloadAttributes} }

func Sorting(sorting *SortingData, frag *FragSequence) State {
	return State{Phase: PhaseSorting, Sorting: sorting, Frag: frag}
}

func Syncing(target uint64) State { return State{Phase: PhaseSyncing, SyncTarget: target} }
