package node

import "errors"

// ErrSyncInProgress wraps a block processing failure caused by a missing
// parent while the syncer is fetching ancestors in the background.
var ErrSyncInProgress = errors.New("sync in progress")
