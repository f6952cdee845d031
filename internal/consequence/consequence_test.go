package consequence

import (
	"errors"
	"path/filepath"
	"testing"
)

func sampleInput(domain, stage string) RecordInput {
	return RecordInput{
		SourceRunID: "run-1",
		Domain:      domain,
		Stage:       stage,
		SpecHash:    "abc123",
		Pattern:     map[string]interface{}{"errorCode": "E_TIMEOUT", "attempt": float64(3)},
		Failure:     Failure{Description: "worker timed out", ErrorCode: "E_TIMEOUT", GateID: "tests_pass"},
		Resolution:  Resolution{Description: "increased timeout budget"},
		Confidence:  1.0,
		Occurrences: 1,
	}
}

func TestWriteForbiddenForNonAuditor(t *testing.T) {
	dir := t.TempDir()
	m, err := Create(filepath.Join(dir, "memory.ndjson"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.Close()

	_, err = m.Write(sampleInput("build", "building"), "packager")
	var forbidden *ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
	if m.Length() != 0 {
		t.Fatalf("expected memory length unchanged after forbidden write, got %d", m.Length())
	}
}

func TestWriteThenGetByID(t *testing.T) {
	dir := t.TempDir()
	m, err := Create(filepath.Join(dir, "memory.ndjson"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.Close()

	r, err := m.Write(sampleInput("build", "building"), runAuditorCaller)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if r.ID == "" || r.Hash == "" || r.CreatedAt == "" {
		t.Fatalf("expected id/hash/createdAt to be populated, got %+v", r)
	}

	got, err := m.GetByID(r.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Hash != r.Hash {
		t.Fatalf("round-tripped record hash mismatch")
	}
}

func TestDecayConfidenceFloorsAtZero(t *testing.T) {
	dir := t.TempDir()
	m, err := Create(filepath.Join(dir, "memory.ndjson"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.Close()

	in := sampleInput("build", "building")
	in.Confidence = 0.3
	r, err := m.Write(in, runAuditorCaller)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	decayed, err := m.DecayConfidence(r.ID, 0.9, runAuditorCaller)
	if err != nil {
		t.Fatalf("DecayConfidence: %v", err)
	}
	if decayed.Confidence != 0 {
		t.Fatalf("expected confidence floored at 0, got %f", decayed.Confidence)
	}

	verify := m.VerifyIntegrity()
	if !verify.Valid {
		t.Fatalf("expected integrity valid after decay rehash, got tampered=%v", verify.TamperedIDs)
	}
}

func TestDecayConfidenceForbiddenForNonAuditor(t *testing.T) {
	dir := t.TempDir()
	m, err := Create(filepath.Join(dir, "memory.ndjson"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.Close()

	r, err := m.Write(sampleInput("build", "building"), runAuditorCaller)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	_, err = m.DecayConfidence(r.ID, 0.1, "some-worker")
	var forbidden *ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
}

func TestQueryPatternSubsetMatch(t *testing.T) {
	dir := t.TempDir()
	m, err := Create(filepath.Join(dir, "memory.ndjson"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.Close()

	if _, err := m.Write(sampleInput("build", "building"), runAuditorCaller); err != nil {
		t.Fatalf("Write: %v", err)
	}
	other := sampleInput("testing", "testing")
	other.Pattern = map[string]interface{}{"errorCode": "E_FLAKY"}
	if _, err := m.Write(other, runAuditorCaller); err != nil {
		t.Fatalf("Write: %v", err)
	}

	results, err := m.Query(map[string]interface{}{"errorCode": "E_TIMEOUT"}, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].Domain != "build" {
		t.Fatalf("expected exactly 1 matching record in domain build, got %+v", results)
	}

	domain := "testing"
	scoped, err := m.Query(map[string]interface{}{}, &domain)
	if err != nil {
		t.Fatalf("Query with domain filter: %v", err)
	}
	if len(scoped) != 1 || scoped[0].Domain != "testing" {
		t.Fatalf("expected exactly 1 record in domain testing, got %+v", scoped)
	}

	none, err := m.Query(map[string]interface{}{"errorCode": "E_TIMEOUT"}, &domain)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no matches for mismatched domain+pattern combo, got %+v", none)
	}
}

func TestVerifyIntegrityDetectsTamper(t *testing.T) {
	dir := t.TempDir()
	m, err := Create(filepath.Join(dir, "memory.ndjson"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.Close()

	r, err := m.Write(sampleInput("build", "building"), runAuditorCaller)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	idx := m.byID[r.ID]
	m.records[idx].Confidence = 999 // mutate without rehashing, simulating tamper

	result := m.VerifyIntegrity()
	if result.Valid {
		t.Fatalf("expected integrity check to detect tamper")
	}
	if len(result.TamperedIDs) != 1 || result.TamperedIDs[0] != r.ID {
		t.Fatalf("expected tampered id %s reported, got %v", r.ID, result.TamperedIDs)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	src, err := Create(filepath.Join(srcDir, "memory.ndjson"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer src.Close()

	r1, err := src.Write(sampleInput("build", "building"), runAuditorCaller)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	r2, err := src.Write(sampleInput("testing", "testing"), runAuditorCaller)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	exportPath := filepath.Join(srcDir, "export.ndjson")
	if err := src.ExportRecords(exportPath); err != nil {
		t.Fatalf("ExportRecords: %v", err)
	}

	dstDir := t.TempDir()
	dst, err := Create(filepath.Join(dstDir, "memory.ndjson"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer dst.Close()

	added, err := dst.ImportRecords(exportPath, runAuditorCaller)
	if err != nil {
		t.Fatalf("ImportRecords: %v", err)
	}
	if added != 2 {
		t.Fatalf("expected 2 records added, got %d", added)
	}

	got1, err := dst.GetByID(r1.ID)
	if err != nil {
		t.Fatalf("GetByID r1: %v", err)
	}
	if got1.Hash != r1.Hash {
		t.Fatalf("expected hash preserved across export/import round trip")
	}
	got2, err := dst.GetByID(r2.ID)
	if err != nil {
		t.Fatalf("GetByID r2: %v", err)
	}
	if got2.Hash != r2.Hash {
		t.Fatalf("expected hash preserved across export/import round trip")
	}

	// Re-importing the same file should add nothing and leave memory intact.
	addedAgain, err := dst.ImportRecords(exportPath, runAuditorCaller)
	if err != nil {
		t.Fatalf("ImportRecords (second pass): %v", err)
	}
	if addedAgain != 0 {
		t.Fatalf("expected 0 newly added records on repeat import, got %d", addedAgain)
	}
	if dst.Length() != 2 {
		t.Fatalf("expected length unchanged after repeat import, got %d", dst.Length())
	}
}

func TestImportRejectsWholeBatchOnTamperedRecord(t *testing.T) {
	srcDir := t.TempDir()
	src, err := Create(filepath.Join(srcDir, "memory.ndjson"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer src.Close()

	if _, err := src.Write(sampleInput("build", "building"), runAuditorCaller); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r2, err := src.Write(sampleInput("testing", "testing"), runAuditorCaller)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	idx := src.byID[r2.ID]
	src.records[idx].Confidence = 42 // tamper in memory before export

	exportPath := filepath.Join(srcDir, "export.ndjson")
	if err := src.ExportRecords(exportPath); err != nil {
		t.Fatalf("ExportRecords: %v", err)
	}

	dstDir := t.TempDir()
	dst, err := Create(filepath.Join(dstDir, "memory.ndjson"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer dst.Close()

	_, err = dst.ImportRecords(exportPath, runAuditorCaller)
	var tampered *TamperedRecordError
	if !errors.As(err, &tampered) {
		t.Fatalf("expected TamperedRecordError, got %v", err)
	}
	if dst.Length() != 0 {
		t.Fatalf("expected no records imported when batch contains a tampered record, got %d", dst.Length())
	}
}

func TestImportForbiddenForNonAuditor(t *testing.T) {
	dir := t.TempDir()
	m, err := Create(filepath.Join(dir, "memory.ndjson"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.Close()

	_, err = m.ImportRecords(filepath.Join(dir, "nonexistent.ndjson"), "some-worker")
	var forbidden *ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError before even touching the file, got %v", err)
	}
}

func TestLoadRoundTripsWrittenRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.ndjson")

	m, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	r, err := m.Write(sampleInput("build", "building"), runAuditorCaller)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	m.Close()

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer loaded.Close()

	if loaded.Length() != 1 {
		t.Fatalf("expected 1 loaded record, got %d", loaded.Length())
	}
	got, err := loaded.GetByID(r.ID)
	if err != nil {
		t.Fatalf("GetByID after load: %v", err)
	}
	if got.Hash != r.Hash {
		t.Fatalf("expected hash preserved across disk round trip")
	}
	if v := loaded.VerifyIntegrity(); !v.Valid {
		t.Fatalf("expected loaded memory to verify clean, got tampered=%v", v.TamperedIDs)
	}
}
