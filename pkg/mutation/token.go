// Package mutation defines the mutation token returned by successful KV
// mutations (§3 "Mutation token").
package mutation

import "fmt"

// Token identifies the post-mutation state of one partition. Its sequence
// number never decreases for a fixed (Bucket, PartitionID, PartitionUUID)
// (§3 invariant).
type Token struct {
	Bucket         string
	PartitionID    uint16
	PartitionUUID  uint64
	SequenceNumber uint64
}

func (t Token) String() string {
	return fmt.Sprintf("%s:%d:%d:%d", t.Bucket, t.PartitionID, t.PartitionUUID, t.SequenceNumber)
}

// IsSet reports whether t carries a real partition UUID, i.e. was
// actually returned by the server rather than left zero-valued because
// the connection never negotiated the mutation_seqno HELLO feature.
func (t Token) IsSet() bool { return t.PartitionUUID != 0 }

// newerOrEqual reports whether candidate is a valid successor to prior
// under the monotonic sequence-number invariant (§3).
func newerOrEqual(prior, candidate Token) bool {
	if prior.Bucket != candidate.Bucket || prior.PartitionID != candidate.PartitionID || prior.PartitionUUID != candidate.PartitionUUID {
		return true // different partition epoch; no ordering constraint applies
	}
	return candidate.SequenceNumber >= prior.SequenceNumber
}

// Tracker keeps the highest-seen token per (bucket, partition, uuid),
// useful for read-your-writes consistency tokens. Not specified as a
// first-class component in §4, but the invariant in §3 implies callers
// need somewhere to fold tokens; this is the natural home.
type Tracker struct {
	latest map[string]Token
}

func NewTracker() *Tracker {
	return &Tracker{latest: make(map[string]Token)}
}

// Record folds t into the tracker, returning false if t violates the
// monotonic sequence-number invariant against the previously recorded
// token for the same partition epoch.
func (tr *Tracker) Record(t Token) bool {
	key := fmt.Sprintf("%s:%d:%d", t.Bucket, t.PartitionID, t.PartitionUUID)
	if prior, ok := tr.latest[key]; ok && !newerOrEqual(prior, t) {
		return false
	}
	tr.latest[key] = t
	return true
}

// Get returns the most recently recorded token for the given partition
// epoch, if any.
func (tr *Tracker) Get(bucket string, partitionID uint16, partitionUUID uint64) (Token, bool) {
	key := fmt.Sprintf("%s:%d:%d", bucket, partitionID, partitionUUID)
	t, ok := tr.latest[key]
	return t, ok
}
