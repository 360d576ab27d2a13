// Package dedup is the content-addressable task deduplication and
// idempotency layer. It decides, before any expensive work runs, whether a
// submission is new, a duplicate in flight, a duplicate already completed,
// or a failed duplicate that should be retried.
//
// The layer is best-effort by design: records live in a TTL-bounded store,
// duplicate checks and registrations are separate single-key operations
// with no compare-and-swap, and every store failure degrades to "proceed
// without deduplication" rather than blocking the pipeline. The work it
// guards must therefore tolerate running more than once for the same input.
//
// Typical wiring:
//
//	st := store.NewMemoryStore()
//	d := dedup.New(st, dedup.DefaultConfig())
//	sub := dedup.NewSubmitter(d)
//
//	decision, err := sub.Submit("/data/prices.xlsx", "user1")
//	if err != nil {
//	    // only a missing input file lands here
//	}
//	if !decision.IsDuplicate {
//	    // run the work, then report back:
//	    d.UpdateStatus(decision.TaskID, dedup.StatusCompleted, result, "")
//	}
package dedup
