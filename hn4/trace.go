package hn4

import "github.com/sirupsen/logrus"

// Trace logging is mostly at Debug level; genesis repair and mirror repair
// log at Warn, and a missed broadcast quorum or failed mirror repair at
// Error. These calls sit on the mount/unmount decision points, not the
// block read/write hot path, so the cost of building the fields is
// acceptable even when disabled.

func traceForceRO(log *logrus.Logger, reason string, slot CardinalSlot) {
	log.WithFields(logrus.Fields{"reason": reason, "slot": slot.String()}).Debug("hn4: mount forced read-only")
}

func traceTaint(log *logrus.Logger, delta uint32, total uint32, reason string) {
	log.WithFields(logrus.Fields{"delta": delta, "total": total, "reason": reason}).Debug("hn4: taint counter incremented")
}

func traceGenesisRepair(log *logrus.Logger, slot CardinalSlot) {
	log.WithFields(logrus.Fields{"slot": slot.String()}).Warn("hn4: genesis repair performed on root anchor")
}

func traceBroadcastQuorum(log *logrus.Logger, written int, northOK bool, ok bool) {
	entry := log.WithFields(logrus.Fields{"written": written, "north_ok": northOK})
	if ok {
		entry.Debug("hn4: broadcast quorum satisfied")
	} else {
		entry.Error("hn4: broadcast quorum not reached")
	}
}

func traceMirrorRepaired(log *logrus.Logger, slot CardinalSlot) {
	log.WithFields(logrus.Fields{"slot": slot.String()}).Warn("hn4: cardinal vote mirror repaired")
}

func traceMirrorRepairFailed(log *logrus.Logger, slot CardinalSlot, err error) {
	log.WithFields(logrus.Fields{"slot": slot.String(), "error": err}).Error("hn4: cardinal vote mirror repair failed")
}
