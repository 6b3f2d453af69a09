// Package consistencysweep documents, but does not implement, the
// reconciliation collaborator C8 assumes exists: something that
// periodically diffs the relational store against delivered envelopes and
// republishes anything ingress published but that never reached C2 (e.g.
// a crash between the relational write and the publish call). Non-goals
// place this reconciliation loop out of scope; this package exists only so
// the contract C8 depends on has one home to point at instead of being an
// implicit, undocumented assumption.
package consistencysweep

import "context"

// Sweeper finds envelopes that were durably persisted but never observed as
// published, and republishes them through ingress.Publisher. No
// implementation ships here — a production deployment supplies its own,
// running out-of-process against the relational store ingress never
// touches directly.
type Sweeper interface {
	Sweep(ctx context.Context) (republished int, err error)
}
