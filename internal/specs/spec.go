// Package specs implements the structural and semantic validator for the
// declarative product Spec, and the transitively-immutable Spec value it
// produces.
package specs

import (
	"encoding/json"
	"fmt"

	"github.com/antigravity-dev/shipyard/internal/canon"
)

// Spec is the deep-frozen, validated product contract. The zero value is
// not useful; construct one only via Validate. Every accessor returns a
// defensive copy so a caller cannot reach back into Spec's internal state
// and mutate it — the Go equivalent of the source's deep-freeze.
type Spec struct {
	raw  rawSpec
	hash string
}

func freeze(raw *rawSpec) (*Spec, error) {
	// Deep-copy via a canonical-JSON round trip: this is also how we
	// guarantee the stored hash reflects exactly the value we freeze.
	canonical, err := canon.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("specs: canonicalize: %w", err)
	}

	var frozen rawSpec
	if err := json.Unmarshal(canonical, &frozen); err != nil {
		return nil, fmt.Errorf("specs: refreeze: %w", err)
	}

	return &Spec{
		raw:  frozen,
		hash: canon.HashBytes(canonical),
	}, nil
}

// SpecHash is the SHA-256 of the Spec's canonical serialization, computed
// once at construction time.
func (s *Spec) SpecHash() string { return s.hash }

// SchemaVersion returns the Spec's schema_version.
func (s *Spec) SchemaVersion() string { return s.raw.SchemaVersion }

// Product returns a copy of the product namespace.
func (s *Spec) Product() Product { return s.raw.Product }

// Features returns a copy of the features slice.
func (s *Spec) Features() []Feature {
	out := make([]Feature, len(s.raw.Features))
	copy(out, s.raw.Features)
	return out
}

// Journeys returns a copy of the journeys slice, including deep copies of
// each journey's nested slices.
func (s *Spec) Journeys() []Journey {
	out := make([]Journey, len(s.raw.Journeys))
	for i, j := range s.raw.Journeys {
		jc := j
		jc.FeatureIDs = append([]string(nil), j.FeatureIDs...)
		jc.Steps = append([]JourneyStep(nil), j.Steps...)
		out[i] = jc
	}
	return out
}

// Design returns a copy of the optional design namespace, or nil if unset.
func (s *Spec) Design() *Design {
	if s.raw.Design == nil {
		return nil
	}
	d := *s.raw.Design
	d.Tokens = deepCopyMap(s.raw.Design.Tokens)
	return &d
}

// Quality returns a copy of the quality namespace.
func (s *Spec) Quality() map[string]interface{} {
	return deepCopyMap(s.raw.Quality)
}

// Delivery returns a copy of the delivery namespace.
func (s *Spec) Delivery() Delivery {
	d := s.raw.Delivery
	d.Platforms = append([]string(nil), s.raw.Delivery.Platforms...)
	return d
}

// Dependencies returns a copy of the optional dependencies namespace, or
// nil if unset.
func (s *Spec) Dependencies() *Dependencies {
	if s.raw.Dependencies == nil {
		return nil
	}
	d := *s.raw.Dependencies
	d.Services = append([]string(nil), s.raw.Dependencies.Services...)
	d.Packages = append([]string(nil), s.raw.Dependencies.Packages...)
	return &d
}

// Extensions returns a copy of the passthrough extensions namespace,
// preserved verbatim as decoded.
func (s *Spec) Extensions() map[string]interface{} {
	return deepCopyMap(s.raw.Extensions)
}

// MarshalJSON lets a Spec be embedded directly in RunState's JSON output
// while still only ever being constructed through Validate.
func (s *Spec) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.raw)
}

// UnmarshalJSON reconstructs a Spec from RunState's persisted JSON. The
// spec has already been validated in a prior process; this path trusts the
// disk content rather than re-running Validate, matching RunState.Load's
// "loaded state is indistinguishable from live" contract.
func (s *Spec) UnmarshalJSON(data []byte) error {
	var raw rawSpec
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	frozen, err := freeze(&raw)
	if err != nil {
		return err
	}
	*s = *frozen
	return nil
}

func deepCopyMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		// in was already produced by a prior json.Unmarshal/Marshal round
		// trip, so this can only fail on a programming error.
		panic(fmt.Errorf("specs: deep copy map: %w", err))
	}
	var out map[string]interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		panic(fmt.Errorf("specs: deep copy map: %w", err))
	}
	return out
}
