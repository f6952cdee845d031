package consequence

import (
	"bufio"
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"

	"github.com/antigravity-dev/shipyard/internal/canon"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Memory is the write-restricted, hash-verified NDJSON record store. The
// NDJSON file at path is the only source of truth; index is a derived,
// in-memory SQLite table rebuilt from records on every load and mutation,
// used only to make query/getByDomain fast.
type Memory struct {
	mu      sync.Mutex
	path    string
	records []Record
	byID    map[string]int // record id -> index into records
	index   *sql.DB
}

// Create opens an empty Consequence Memory backed by path. The file is
// not written until the first successful Write.
func Create(path string) (*Memory, error) {
	m := &Memory{path: path, byID: map[string]int{}}
	if err := m.openIndex(); err != nil {
		return nil, err
	}
	return m, nil
}

// Load parses every NDJSON line at path into memory and builds the id
// index and the derived SQLite query index.
func Load(path string) (*Memory, error) {
	m := &Memory{path: path, byID: map[string]int{}}
	if err := m.openIndex(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("consequence: read %s: %w", path, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var r Record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			return nil, fmt.Errorf("consequence: parse record: %w", err)
		}
		if err := m.appendInMemory(r); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("consequence: scan %s: %w", path, err)
	}
	return m, nil
}

func (m *Memory) openIndex() error {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return fmt.Errorf("consequence: open derived index: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE records (
		id          TEXT PRIMARY KEY,
		domain      TEXT NOT NULL,
		pattern     TEXT NOT NULL,
		confidence  REAL NOT NULL
	)`); err != nil {
		db.Close()
		return fmt.Errorf("consequence: create derived index table: %w", err)
	}
	m.index = db
	return nil
}

func (m *Memory) appendInMemory(r Record) error {
	m.records = append(m.records, r)
	m.byID[r.ID] = len(m.records) - 1
	patternJSON, err := json.Marshal(r.Pattern)
	if err != nil {
		return fmt.Errorf("consequence: encode pattern for index: %w", err)
	}
	if _, err := m.index.Exec(`INSERT INTO records (id, domain, pattern, confidence) VALUES (?, ?, ?, ?)`,
		r.ID, r.Domain, string(patternJSON), r.Confidence); err != nil {
		return fmt.Errorf("consequence: insert into derived index: %w", err)
	}
	return nil
}

func (m *Memory) reindexConfidenceLocked(id string, confidence float64) error {
	_, err := m.index.Exec(`UPDATE records SET confidence = ? WHERE id = ?`, confidence, id)
	if err != nil {
		return fmt.Errorf("consequence: update derived index: %w", err)
	}
	return nil
}

// Write appends a new record. Only callerWorkerID == "run-auditor" may
// call this; any other caller gets ForbiddenError and memory is
// unchanged.
func (m *Memory) Write(input RecordInput, callerWorkerID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if callerWorkerID != runAuditorCaller {
		return Record{}, &ForbiddenError{Operation: "write", Caller: callerWorkerID}
	}

	r := Record{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now().UTC().Format(timestampLayout),
		SourceRunID: input.SourceRunID,
		Domain:      input.Domain,
		Stage:       input.Stage,
		SpecHash:    input.SpecHash,
		Pattern:     input.Pattern,
		Failure:     input.Failure,
		Resolution:  input.Resolution,
		Confidence:  input.Confidence,
		Occurrences: input.Occurrences,
	}
	hash, err := canon.Hash(hashInputFor(r))
	if err != nil {
		return Record{}, fmt.Errorf("consequence: hash new record: %w", err)
	}
	r.Hash = hash

	if err := m.appendInMemory(r); err != nil {
		return Record{}, err
	}
	if err := m.persistLocked(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// DecayConfidence reduces a record's confidence by amount, floored at 0,
// recomputes its hash, and persists. Auditor-only.
func (m *Memory) DecayConfidence(id string, amount float64, callerWorkerID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if callerWorkerID != runAuditorCaller {
		return Record{}, &ForbiddenError{Operation: "decayConfidence", Caller: callerWorkerID}
	}

	idx, ok := m.byID[id]
	if !ok {
		return Record{}, &NotFoundError{ID: id}
	}

	r := m.records[idx]
	r.Confidence -= amount
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	hash, err := canon.Hash(hashInputFor(r))
	if err != nil {
		return Record{}, fmt.Errorf("consequence: hash decayed record: %w", err)
	}
	r.Hash = hash
	m.records[idx] = r

	if err := m.reindexConfidenceLocked(id, r.Confidence); err != nil {
		return Record{}, err
	}
	if err := m.persistLocked(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// GetByID returns the record with the given ID.
func (m *Memory) GetByID(id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.byID[id]
	if !ok {
		return Record{}, &NotFoundError{ID: id}
	}
	return m.records[idx], nil
}

// GetByDomain returns every record in the given domain, queried through
// the derived SQLite index.
func (m *Memory) GetByDomain(domain string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := m.index.Query(`SELECT id FROM records WHERE domain = ? ORDER BY id`, domain)
	if err != nil {
		return nil, fmt.Errorf("consequence: query derived index: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("consequence: scan derived index row: %w", err)
		}
		out = append(out, m.records[m.byID[id]])
	}
	return out, rows.Err()
}

// Query returns records whose stored pattern contains every key of
// queryPattern with equal primitive values, optionally filtered by
// domain. The domain filter (when provided) narrows the candidate set via
// the SQLite index; the subset match itself is evaluated in Go since
// pattern is an arbitrary JSON object.
func (m *Memory) Query(queryPattern map[string]interface{}, domain *string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []Record
	if domain != nil {
		rows, err := m.index.Query(`SELECT id FROM records WHERE domain = ? ORDER BY id`, *domain)
		if err != nil {
			return nil, fmt.Errorf("consequence: query derived index: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return nil, fmt.Errorf("consequence: scan derived index row: %w", err)
			}
			candidates = append(candidates, m.records[m.byID[id]])
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	} else {
		candidates = append(candidates, m.records...)
	}

	var out []Record
	for _, r := range candidates {
		if patternContains(r.Pattern, queryPattern) {
			out = append(out, r)
		}
	}
	return out, nil
}

func patternContains(stored, query map[string]interface{}) bool {
	for k, qv := range query {
		sv, ok := stored[k]
		if !ok {
			return false
		}
		if fmt.Sprint(sv) != fmt.Sprint(qv) {
			return false
		}
	}
	return true
}

// Length returns the number of records in memory.
func (m *Memory) Length() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// IntegrityResult is the outcome of VerifyIntegrity.
type IntegrityResult struct {
	Valid       bool
	TamperedIDs []string
}

// VerifyIntegrity recomputes every record's hash and reports mismatches.
func (m *Memory) VerifyIntegrity() IntegrityResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tampered []string
	for _, r := range m.records {
		recomputed, err := canon.Hash(hashInputFor(r))
		if err != nil || recomputed != r.Hash {
			tampered = append(tampered, r.ID)
		}
	}
	return IntegrityResult{Valid: len(tampered) == 0, TamperedIDs: tampered}
}

// ExportRecords writes the full in-memory set to path as NDJSON.
func (m *Memory) ExportRecords(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return writeRecordsToFile(path, m.records)
}

// ImportRecords verifies every incoming record's hash; any mismatch
// rejects the entire import with TamperedRecordError. Records whose ID is
// already present are skipped. Auditor-only. Returns the count of newly
// added records, and persists only if that count is greater than zero.
func (m *Memory) ImportRecords(path string, callerWorkerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if callerWorkerID != runAuditorCaller {
		return 0, &ForbiddenError{Operation: "importRecords", Caller: callerWorkerID}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("consequence: read import file %s: %w", path, err)
	}

	var incoming []Record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var r Record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			return 0, fmt.Errorf("consequence: parse imported record: %w", err)
		}
		recomputed, err := canon.Hash(hashInputFor(r))
		if err != nil || recomputed != r.Hash {
			return 0, &TamperedRecordError{ID: r.ID}
		}
		incoming = append(incoming, r)
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("consequence: scan import file: %w", err)
	}

	added := 0
	for _, r := range incoming {
		if _, exists := m.byID[r.ID]; exists {
			continue
		}
		if err := m.appendInMemory(r); err != nil {
			return added, err
		}
		added++
	}

	if added > 0 {
		if err := m.persistLocked(); err != nil {
			return added, err
		}
	}
	return added, nil
}

// Close releases the derived in-memory SQLite index. The NDJSON file on
// disk is unaffected.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == nil {
		return nil
	}
	return m.index.Close()
}

func (m *Memory) persistLocked() error {
	return writeRecordsToFile(m.path, m.records)
}

func writeRecordsToFile(path string, records []Record) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("consequence: encode record %s: %w", r.ID, err)
		}
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("consequence: create dir %s: %w", dir, err)
		}
	}

	tmp := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("consequence: write temp file: %w", err)
	}
	if f, err := os.OpenFile(tmp, os.O_RDWR, 0o644); err == nil {
		_ = f.Sync()
		_ = f.Close()
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("consequence: rename temp file into place: %w", err)
	}
	return nil
}
