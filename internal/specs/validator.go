package specs

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var structValidate = validator.New(validator.WithRequiredStructEnabled())

// Validate parses and checks rawSpec (a JSON document), returning a
// transitively immutable Spec on success or the accumulated list of
// structural and semantic errors on failure.
//
// Structural checks (required fields, non-empty slices, enum membership)
// are delegated to go-playground/validator's struct tags. Semantic checks
// that no struct tag can express — unique IDs, cross-references between
// journeys and features, numeric-only quality values, supported schema
// versions — are hand-written below, exactly as spec.md requires.
func Validate(rawJSON []byte) (*Spec, error) {
	var raw rawSpec
	dec := json.NewDecoder(bytes.NewReader(rawJSON))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		errs := newErrors()
		errs.add("$", "invalid JSON document: %v", err)
		return nil, errs
	}

	errs := newErrors()

	if err := structValidate.Struct(raw); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				errs.add(fe.Namespace(), "failed structural check %q", fe.Tag())
			}
		} else {
			errs.add("$", "structural validation failed: %v", err)
		}
	}

	validateSchemaVersion(&raw, errs)
	validateUniqueFeatureIDs(&raw, errs)
	validateUniqueJourneyIDs(&raw, errs)
	validateJourneyFeatureReferences(&raw, errs)
	validateFeatureCoverage(&raw, errs)
	validateJourneyAssertions(&raw, errs)
	validateQualityIsNumeric(&raw, errs)

	if errs.any() {
		return nil, errs
	}

	return freeze(&raw)
}

func validateSchemaVersion(raw *rawSpec, errs *Errors) {
	if raw.SchemaVersion == "" {
		return // already reported by struct tag
	}
	if !SupportedSchemaVersions[raw.SchemaVersion] {
		errs.add("schema_version", "unsupported schema_version %q", raw.SchemaVersion)
	}
}

func validateUniqueFeatureIDs(raw *rawSpec, errs *Errors) {
	seen := make(map[string]bool, len(raw.Features))
	for i, f := range raw.Features {
		if f.ID == "" {
			continue
		}
		if seen[f.ID] {
			errs.add(fmt.Sprintf("features[%d].id", i), "duplicate feature id %q", f.ID)
			continue
		}
		seen[f.ID] = true
	}
}

func validateUniqueJourneyIDs(raw *rawSpec, errs *Errors) {
	seen := make(map[string]bool, len(raw.Journeys))
	for i, j := range raw.Journeys {
		if j.ID == "" {
			continue
		}
		if seen[j.ID] {
			errs.add(fmt.Sprintf("journeys[%d].id", i), "duplicate journey id %q", j.ID)
			continue
		}
		seen[j.ID] = true
	}
}

func validateJourneyFeatureReferences(raw *rawSpec, errs *Errors) {
	known := make(map[string]bool, len(raw.Features))
	for _, f := range raw.Features {
		known[f.ID] = true
	}
	for i, j := range raw.Journeys {
		for k, fid := range j.FeatureIDs {
			if !known[fid] {
				errs.add(fmt.Sprintf("journeys[%d].featureIds[%d]", i, k), "references unknown feature %q", fid)
			}
		}
	}
}

func validateFeatureCoverage(raw *rawSpec, errs *Errors) {
	covered := make(map[string]bool, len(raw.Features))
	for _, j := range raw.Journeys {
		for _, fid := range j.FeatureIDs {
			covered[fid] = true
		}
	}
	for i, f := range raw.Features {
		if f.ID == "" {
			continue
		}
		if !covered[f.ID] {
			errs.add(fmt.Sprintf("features[%d]", i), "feature %q is not referenced by any journey", f.ID)
		}
	}
}

func validateJourneyAssertions(raw *rawSpec, errs *Errors) {
	for i, j := range raw.Journeys {
		hasAssertion := false
		for _, s := range j.Steps {
			if s.Kind == StepAssertion {
				hasAssertion = true
				break
			}
		}
		if !hasAssertion {
			errs.add(fmt.Sprintf("journeys[%d].steps", i), "journey %q has no assertion step", j.ID)
		}
	}
}

func validateQualityIsNumeric(raw *rawSpec, errs *Errors) {
	for k, v := range raw.Quality {
		switch v.(type) {
		case float64, json.Number:
			continue
		default:
			errs.add(fmt.Sprintf("quality.%s", k), "value must be numeric, got %T", v)
		}
	}
}
