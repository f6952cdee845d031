// Package consequence implements Consequence Memory: a write-restricted,
// hash-verified NDJSON database of failure-to-resolution records, with an
// in-memory SQLite index (modernc.org/sqlite) layered on top purely to
// make query/getByDomain fast — the NDJSON file remains the only source
// of truth; the index is rebuilt from it on every load and never
// persisted itself.
package consequence

// Failure describes what went wrong.
type Failure struct {
	Description string `json:"description"`
	ErrorCode   string `json:"errorCode,omitempty"`
	GateID      string `json:"gateId,omitempty"`
}

// Resolution describes how (or whether) the failure was addressed.
type Resolution struct {
	Description   string `json:"description"`
	AppliedInRunID string `json:"appliedInRunId,omitempty"`
}

// Record is one Consequence Memory entry: an observed failure pattern and
// its resolution, with a confidence that may decay over time but never
// below zero, and a hash that binds every other field.
type Record struct {
	ID          string                 `json:"id"`
	CreatedAt   string                 `json:"createdAt"`
	SourceRunID string                 `json:"sourceRunId"`
	Domain      string                 `json:"domain"`
	Stage       string                 `json:"stage"`
	SpecHash    string                 `json:"specHash"`
	Pattern     map[string]interface{} `json:"pattern"`
	Failure     Failure                `json:"failure"`
	Resolution  Resolution             `json:"resolution"`
	Confidence  float64                `json:"confidence"`
	Occurrences uint32                 `json:"occurrences"`
	Hash        string                 `json:"hash"`
}

// RecordInput is what callers supply to Write; ID, CreatedAt, and Hash are
// computed by the memory, never by the caller.
type RecordInput struct {
	SourceRunID string
	Domain      string
	Stage       string
	SpecHash    string
	Pattern     map[string]interface{}
	Failure     Failure
	Resolution  Resolution
	Confidence  float64
	Occurrences uint32
}

// hashInput is the exact field set hashed for a record, per spec.md §6:
// stableStringify({ confidence, createdAt, domain, failure, id,
// occurrences, pattern, resolution, sourceRunId, specHash, stage }).
type hashInput struct {
	Confidence  float64                `json:"confidence"`
	CreatedAt   string                 `json:"createdAt"`
	Domain      string                 `json:"domain"`
	Failure     Failure                `json:"failure"`
	ID          string                 `json:"id"`
	Occurrences uint32                 `json:"occurrences"`
	Pattern     map[string]interface{} `json:"pattern"`
	Resolution  Resolution             `json:"resolution"`
	SourceRunID string                 `json:"sourceRunId"`
	SpecHash    string                 `json:"specHash"`
	Stage       string                 `json:"stage"`
}

func hashInputFor(r Record) hashInput {
	return hashInput{
		Confidence:  r.Confidence,
		CreatedAt:   r.CreatedAt,
		Domain:      r.Domain,
		Failure:     r.Failure,
		ID:          r.ID,
		Occurrences: r.Occurrences,
		Pattern:     r.Pattern,
		Resolution:  r.Resolution,
		SourceRunID: r.SourceRunID,
		SpecHash:    r.SpecHash,
		Stage:       r.Stage,
	}
}
