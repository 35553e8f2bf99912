package hn4

// stateDecision is the result of evaluating persisted state flags against
// the caller's requested mount intent, per spec.md §4.4.
type stateDecision struct {
	ForceRO      bool
	TaintDelta   uint32
	NewFlags     StateFlag
	SkipDirtyMark bool
	Err          error
}

// evaluateMountState implements the priority-ordered state evaluator.
// Priority (highest first): PENDING_WIPE, LOCKED, TOXIC, PANIC, bitwise-
// impossible CLEAN&DIRTY, on-disk UNMOUNTING, NEEDS_UPGRADE, unrecognised
// ro_compat (roForced, computed earlier by validateCompatibility), caller
// READ_ONLY, else clean transition to DIRTY.
func evaluateMountState(flags StateFlag, requested MountIntentFlag, roCompatForced, dirtySplit bool) stateDecision {
	if flags.Has(StatePendingWipe) {
		return stateDecision{Err: ErrWipePending}
	}
	if flags.Has(StateLocked) {
		return stateDecision{Err: ErrVolumeLocked}
	}

	newFlags := flags
	if dirtySplit {
		newFlags = newFlags &^ StateClean
		newFlags |= StateDirty
	}

	if flags.Has(StateToxic) {
		return stateDecision{ForceRO: true, NewFlags: newFlags}
	}
	if flags.Has(StatePanic) {
		return stateDecision{ForceRO: true, SkipDirtyMark: true, NewFlags: newFlags}
	}
	if flags.Has(StateClean) && flags.Has(StateDirty) {
		return stateDecision{ForceRO: true, TaintDelta: 1, NewFlags: newFlags}
	}
	if flags.Has(StateUnmounting) {
		newFlags = (newFlags &^ StateClean) | StateDirty
		return stateDecision{ForceRO: false, NewFlags: newFlags}
	}
	if flags.Has(StateNeedsUpgrade) {
		return stateDecision{ForceRO: true, NewFlags: newFlags}
	}
	if roCompatForced {
		return stateDecision{ForceRO: true, NewFlags: newFlags}
	}
	if requested&MountIntentReadOnly != 0 {
		return stateDecision{ForceRO: true, NewFlags: newFlags}
	}

	newFlags = (newFlags &^ StateClean) | StateDirty
	return stateDecision{ForceRO: false, NewFlags: newFlags}
}

// taintForDrift returns the taint-counter delta contributed by an epoch
// drift classification (spec.md §4.4: "TIME_DILATION adds 10").
func taintForDrift(d driftClass) uint32 {
	if d == driftTimeDilation {
		return 10
	}
	return 0
}

const (
	taintTornFlags        = 1
	taintGhostResurrected = 1
)
