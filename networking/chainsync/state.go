package chainsync

// SyncState is the sync service's coarse-grained state.
type SyncState int

const (
	// StateIdle is the initial state: no peers connected or sync not yet started.
	StateIdle SyncState = iota
	// StateSyncing means blocks are actively being processed to catch up with
	// the network. Backfill happens naturally within this state when orphan
	// blocks are detected.
	StateSyncing
	// StateSynced means local head has reached or exceeded the network's
	// finalized slot mode. New blocks still arrive via gossip in this state.
	StateSynced
)

func (s SyncState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	case StateSynced:
		return "synced"
	default:
		return "unknown"
	}
}

// CanTransitionTo reports whether a transition from s to target is valid.
func (s SyncState) CanTransitionTo(target SyncState) bool {
	switch s {
	case StateIdle:
		return target == StateSyncing
	case StateSyncing:
		return target == StateSynced || target == StateIdle
	case StateSynced:
		return target == StateSyncing || target == StateIdle
	default:
		return false
	}
}
