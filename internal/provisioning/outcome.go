package provisioning

// Outcome is the terminal state of one appointment within a tick.
type Outcome string

const (
	// OutcomeProvisioned means a new session was created, stored and linked.
	OutcomeProvisioned Outcome = "provisioned"
	// OutcomeReused means an unlinked meeting from an earlier attempt was linked.
	OutcomeReused Outcome = "reused"

	OutcomeConfigError    Outcome = "config_error"
	OutcomeProviderFailed Outcome = "provider_failed"
	// OutcomePersistFailed leaves a provider session with no meeting row.
	OutcomePersistFailed Outcome = "persist_failed"
	// OutcomeLinkFailed leaves an orphan meeting; the appointment stays eligible.
	OutcomeLinkFailed Outcome = "link_failed"
	// OutcomeAlreadyLinked means another writer linked a meeting first.
	OutcomeAlreadyLinked Outcome = "already_linked"
	OutcomePanic         Outcome = "panic"
)

// Provisioned reports whether the appointment now references a meeting created by this tick.
func (o Outcome) Provisioned() bool {
	return o == OutcomeProvisioned || o == OutcomeReused
}

// Failed reports the provisioning-failed state. The appointment is retried on the next tick
// while it stays inside the window.
func (o Outcome) Failed() bool {
	return !o.Provisioned()
}

// tick result labels
const (
	tickOK        = "ok"
	tickError     = "error"
	tickOverlap   = "skipped"
	tickLocked    = "locked"
	tickLockError = "lock_error"
	tickPanic     = "panic"
)
