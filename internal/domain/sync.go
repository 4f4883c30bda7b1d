package domain

import "time"

// DrainReport summarizes one pass over the pending queue.
type DrainReport struct {
	ProfileID int64
	Delivered []int64 // pending ids replayed and removed
	Pending   []int64 // pending ids left for the next pass
	// AggregateErrors counts stored ratings whose recomputation failed.
	AggregateErrors int
	StopReason      string
	Duration        time.Duration
}

const (
	StopOffline      = "offline"
	StopRemoteFailed = "remote_failed"
	StopCanceled     = "canceled"
	// StopAggregateFailed means the rating was stored but its item's
	// average was not; the item stays queued for a recompute-only retry.
	StopAggregateFailed = "aggregate_failed"
)

// Complete reports whether every item seen by the pass was delivered.
func (r *DrainReport) Complete() bool {
	return len(r.Pending) == 0
}
