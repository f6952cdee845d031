package evidence

import (
	"fmt"
	"sync"
	"time"

	"github.com/antigravity-dev/shipyard/internal/canon"
)

// Chain is the ordered, append-only sequence of Entry records for one run.
// A Chain has exactly one owner at a time (the Master Controller), which
// lends out mutable access to workers and gates only for the duration of a
// single call; nothing in this package exposes update, delete, splice, or
// reset operations.
type Chain struct {
	mu      sync.Mutex
	entries []Entry
}

// New returns an empty chain.
func New() *Chain {
	return &Chain{}
}

// hashInput is the exact field set (and only that field set) hashed for an
// entry, per the wire contract: stableStringify({data, prevHash, seq,
// stage, timestamp, type, workerId}).
type hashInput struct {
	Data      map[string]interface{} `json:"data"`
	PrevHash  *string                `json:"prevHash"`
	Seq       uint64                 `json:"seq"`
	Stage     Stage                  `json:"stage"`
	Timestamp string                 `json:"timestamp"`
	Type      EntryType              `json:"type"`
	WorkerID  string                 `json:"workerId"`
}

func computeHash(e Entry) (string, error) {
	return canon.Hash(hashInput{
		Data:      e.Data,
		PrevHash:  e.PrevHash,
		Seq:       e.Seq,
		Stage:     e.Stage,
		Timestamp: e.Timestamp,
		Type:      e.Type,
		WorkerID:  e.WorkerID,
	})
}

// Append assigns the next dense sequence number, links prevHash to the
// current tip, computes the entry's own hash, and returns the new,
// immutable Entry. Append is not reentrant: a caller must not call Append
// again from within the goroutine processing this Append before it
// returns.
func (c *Chain) Append(in Input) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	data := in.Data
	if data == nil {
		data = map[string]interface{}{}
	}

	e := Entry{
		Seq:       uint64(len(c.entries)),
		Timestamp: formatTimestamp(ts),
		Type:      in.Type,
		WorkerID:  in.WorkerID,
		Stage:     in.Stage,
		Data:      data,
		PrevHash:  c.lastHashLocked(),
	}

	hash, err := computeHash(e)
	if err != nil {
		return Entry{}, fmt.Errorf("evidence: compute hash for seq %d: %w", e.Seq, err)
	}
	e.Hash = hash

	c.entries = append(c.entries, e)
	return e, nil
}

func (c *Chain) lastHashLocked() *string {
	if len(c.entries) == 0 {
		return nil
	}
	h := c.entries[len(c.entries)-1].Hash
	return &h
}

// GetLastHash returns the hash of the most recently appended entry, or nil
// for an empty chain.
func (c *Chain) GetLastHash() *string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHashLocked()
}

// Length returns the number of entries in the chain.
func (c *Chain) Length() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetEntry returns the entry at seq, if present.
func (c *Chain) GetEntry(seq uint64) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq >= uint64(len(c.entries)) {
		return Entry{}, false
	}
	return c.entries[seq], true
}

// GetTimeline returns a read-only snapshot of every entry in seq order.
func (c *Chain) GetTimeline() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// VerifyResult is the outcome of walking a chain's hash links.
type VerifyResult struct {
	Valid       bool
	Length      int
	BrokenAtSeq *uint64
	Error       string
}

// Verify walks the chain in order, checking that each entry's prevHash
// matches the previous entry's hash and that each entry's stored hash
// equals its recomputed hash. O(n).
func (c *Chain) Verify() VerifyResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, e := range c.entries {
		seq := uint64(i)

		if i == 0 {
			if e.PrevHash != nil {
				return brokenAt(seq, len(c.entries), "entry 0 must have a nil prevHash")
			}
		} else {
			prev := c.entries[i-1]
			if e.PrevHash == nil || *e.PrevHash != prev.Hash {
				return brokenAt(seq, len(c.entries), "prevHash does not match previous entry's hash")
			}
		}

		recomputed, err := computeHash(e)
		if err != nil {
			return brokenAt(seq, len(c.entries), fmt.Sprintf("failed to recompute hash: %v", err))
		}
		if recomputed != e.Hash {
			return brokenAt(seq, len(c.entries), "stored hash does not match recomputed hash")
		}
	}

	return VerifyResult{Valid: true, Length: len(c.entries)}
}

func brokenAt(seq uint64, length int, msg string) VerifyResult {
	s := seq
	return VerifyResult{Valid: false, Length: length, BrokenAtSeq: &s, Error: msg}
}
