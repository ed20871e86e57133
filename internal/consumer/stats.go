package consumer

// Stats is the periodic counters snapshot the loop logs, including
// PendingRetries (size of the C4 attempts map) and Errors (terminal but
// not DLQ'd count).
type Stats struct {
	Processed       uint64
	NativeDeltas    uint64
	TokenDeltas     uint64
	SwapsDetected   uint64
	SwapsEmitted    uint64
	DLQ             uint64
	DLQPublishFailed uint64
	Skipped         uint64
	PendingRetries  int
	Errors          uint64
}

// Snapshot returns a copy of the current counters, filling PendingRetries
// from the attempts map's current size.
func (l *Loop) Snapshot() Stats {
	l.statsMu.Lock()
	s := l.stats
	l.statsMu.Unlock()
	if l.Attempts != nil {
		s.PendingRetries = l.Attempts.Len()
	}
	return s
}

// recordOutcome folds one envelope's disposition into the running counters
// and logs a snapshot every StatsEvery envelopes.
func (l *Loop) recordOutcome(o envelopeOutcome) {
	l.statsMu.Lock()
	l.stats.Processed++
	l.stats.NativeDeltas += uint64(o.nativeDeltas)
	l.stats.TokenDeltas += uint64(o.tokenDeltas)
	l.stats.SwapsDetected += uint64(o.swapsDetected)
	l.stats.SwapsEmitted += uint64(o.swapsEmitted)
	if o.skipped {
		l.stats.Skipped++
	}
	processed := l.stats.Processed
	snapshot := l.stats
	l.statsMu.Unlock()

	if l.Config.StatsEvery > 0 && processed%uint64(l.Config.StatsEvery) == 0 {
		pending := 0
		if l.Attempts != nil {
			pending = l.Attempts.Len()
		}
		l.Logger.Printf(
			"stats processed=%d native_deltas=%d token_deltas=%d swaps_detected=%d swaps_emitted=%d dlq=%d dlq_publish_failed=%d skipped=%d pending_retries=%d errors=%d",
			snapshot.Processed, snapshot.NativeDeltas, snapshot.TokenDeltas, snapshot.SwapsDetected, snapshot.SwapsEmitted,
			snapshot.DLQ, snapshot.DLQPublishFailed, snapshot.Skipped, pending, snapshot.Errors,
		)
	}
}
