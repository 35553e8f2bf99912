package hn4

import "testing"

func TestEvaluateMountStatePriorityOrder(t *testing.T) {
	cases := []struct {
		name       string
		flags      StateFlag
		requested  MountIntentFlag
		roForced   bool
		dirtySplit bool
		wantErr    error
		wantRO     bool
		wantSkip   bool
		wantTaint  uint32
	}{
		{
			name:    "pending wipe rejects outright",
			flags:   StatePendingWipe | StateClean,
			wantErr: ErrWipePending,
		},
		{
			name:    "locked rejects even if also pending-wipe-adjacent",
			flags:   StateLocked | StateClean,
			wantErr: ErrVolumeLocked,
		},
		{
			name:   "toxic forces read-only",
			flags:  StateToxic | StateClean,
			wantRO: true,
		},
		{
			name:     "panic forces read-only and skips the dirty mark",
			flags:    StatePanic | StateClean,
			wantRO:   true,
			wantSkip: true,
		},
		{
			name:      "clean and dirty both set taints and forces read-only",
			flags:     StateClean | StateDirty,
			wantRO:    true,
			wantTaint: 1,
		},
		{
			name:   "on-disk unmounting normalizes to dirty and mounts read-write",
			flags:  StateUnmounting | StateClean,
			wantRO: false,
		},
		{
			name:   "needs-upgrade forces read-only",
			flags:  StateNeedsUpgrade | StateClean,
			wantRO: true,
		},
		{
			name:     "unrecognised ro_compat bit forces read-only",
			flags:    StateClean,
			roForced: true,
			wantRO:   true,
		},
		{
			name:      "caller-requested read-only forces read-only",
			flags:     StateClean,
			requested: MountIntentReadOnly,
			wantRO:    true,
		},
		{
			name:   "ordinary clean volume mounts read-write",
			flags:  StateClean,
			wantRO: false,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d := evaluateMountState(c.flags, c.requested, c.roForced, c.dirtySplit)
			if c.wantErr != nil {
				if d.Err == nil || CodeOf(d.Err) != CodeOf(c.wantErr) {
					t.Fatalf("expected error %v, got %v", c.wantErr, d.Err)
				}
				return
			}
			if d.Err != nil {
				t.Fatalf("unexpected error: %v", d.Err)
			}
			if d.ForceRO != c.wantRO {
				t.Fatalf("ForceRO = %v, want %v", d.ForceRO, c.wantRO)
			}
			if d.SkipDirtyMark != c.wantSkip {
				t.Fatalf("SkipDirtyMark = %v, want %v", d.SkipDirtyMark, c.wantSkip)
			}
			if d.TaintDelta != c.wantTaint {
				t.Fatalf("TaintDelta = %d, want %d", d.TaintDelta, c.wantTaint)
			}
		})
	}
}

func TestEvaluateMountStateDirtySplitForcesDirty(t *testing.T) {
	d := evaluateMountState(StateClean, 0, false, true)
	if !d.NewFlags.Has(StateDirty) || d.NewFlags.Has(StateClean) {
		t.Fatalf("expected dirty split to strip CLEAN and set DIRTY in NewFlags, got %v", d.NewFlags)
	}
}

func TestEvaluateMountStatePendingWipeBeatsEverythingElse(t *testing.T) {
	d := evaluateMountState(StatePendingWipe|StateLocked|StateToxic, 0, true, true)
	if CodeOf(d.Err) != CodeWipePending {
		t.Fatalf("expected PENDING_WIPE to take priority, got %v", d.Err)
	}
}
