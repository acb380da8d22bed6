package metrics

import "time"

// VFSMetrics provides observability for the virtual filesystem engine.
//
// This interface is optional - the engine falls back to NewNoopVFSMetrics when
// none is supplied.
type VFSMetrics interface {
	// RecordOperation records a completed engine operation.
	//
	// Parameters:
	//   - operation: Operation name (e.g., "create", "read", "delete_user")
	//   - duration: Time taken to complete the operation
	//   - err: Error if the operation failed, nil if successful
	RecordOperation(operation string, duration time.Duration, err error)

	// SetQuota publishes the current usage and limit of an account in bytes.
	SetQuota(userID string, usageBytes, limitBytes uint64)

	// DeleteQuota removes the quota series of a deleted account.
	DeleteQuota(userID string)

	// SetActiveSessions updates the number of open sessions.
	SetActiveSessions(count int)

	// SetFiles updates the number of files tracked in the logical index.
	SetFiles(count int)

	// RecordReconcile records a completed synchronization pass.
	//
	// Parameters:
	//   - duration: Time taken by the pass
	//   - dropped: Logical entries removed because their physical object was gone
	//   - discovered: Physical objects added to the logical index
	//   - err: Error if the pass failed
	RecordReconcile(duration time.Duration, dropped, discovered int, err error)
}

// NewNoopVFSMetrics returns a VFSMetrics that discards everything.
func NewNoopVFSMetrics() VFSMetrics {
	return noopVFSMetrics{}
}

type noopVFSMetrics struct{}

func (noopVFSMetrics) RecordOperation(string, time.Duration, error)   {}
func (noopVFSMetrics) SetQuota(string, uint64, uint64)                {}
func (noopVFSMetrics) DeleteQuota(string)                             {}
func (noopVFSMetrics) SetActiveSessions(int)                          {}
func (noopVFSMetrics) SetFiles(int)                                   {}
func (noopVFSMetrics) RecordReconcile(time.Duration, int, int, error) {}
