package metrics

import "time"

// Counter and latency names recorded by the engine.
const (
	IntentCreated      = "intent_created"
	IntentRejected     = "intent_rejected"
	IntentExpired      = "intent_expired"
	VerifyConfirmed    = "verify_confirmed"
	VerifyDuplicate    = "verify_duplicate"
	VerifyRejected     = "verify_rejected"
	OracleFallback     = "oracle_fallback"
	OracleCacheHit     = "oracle_cache_hit"
	LedgerPosted       = "ledger_posted"
	MilestoneAllocated = "milestone_allocated"
	DepositCreated     = "deposit_created"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Since observes the time elapsed from start under name.
func Since(r Recorder, name string, start time.Time, labels map[string]string) {
	r.ObserveLatency(name, time.Since(start), labels)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

var (
	_ Recorder = NoopRecorder{}
	_ Recorder = (*PrometheusRecorder)(nil)
)

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
