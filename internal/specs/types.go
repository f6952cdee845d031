package specs

// Product is the product namespace of a Spec.
type Product struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// Feature is a single declared product feature.
type Feature struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// StepKind distinguishes an ordinary journey step from one that asserts an
// outcome. Every journey must contain at least one assertion step.
type StepKind string

const (
	StepAction    StepKind = "action"
	StepAssertion StepKind = "assertion"
)

// JourneyStep is a single step of a user journey.
type JourneyStep struct {
	Kind        StepKind `json:"kind" validate:"required,oneof=action assertion"`
	Description string   `json:"description" validate:"required"`
}

// Journey is an end-to-end user journey exercising one or more features.
type Journey struct {
	ID         string        `json:"id" validate:"required"`
	Name       string        `json:"name" validate:"required"`
	FeatureIDs []string      `json:"featureIds" validate:"required,min=1,dive,required"`
	Steps      []JourneyStep `json:"steps" validate:"required,min=1,dive"`
}

// Design is the optional design-system namespace. Its shape is not
// prescribed by the core; it passes through structurally validated but
// otherwise opaque.
type Design struct {
	System string                 `json:"system,omitempty"`
	Tokens map[string]interface{} `json:"tokens,omitempty"`
}

// Delivery describes how and where the shipped product is meant to run.
// The core never acts on these fields; release-packaging workers consume
// them as their own constructor input.
type Delivery struct {
	Platforms []string `json:"platforms" validate:"required,min=1"`
	Channel   string   `json:"channel" validate:"required"`
}

// Dependencies is the optional external-dependency namespace.
type Dependencies struct {
	Services []string `json:"services,omitempty"`
	Packages []string `json:"packages,omitempty"`
}

// rawSpec is the structurally-validated, pre-freeze decoding of a Spec
// document. SchemaVersion and Quality are checked semantically by
// Validate beyond what struct tags can express (supported-version set,
// numeric-only map).
type rawSpec struct {
	SchemaVersion string                 `json:"schema_version" validate:"required"`
	Product       Product                `json:"product" validate:"required"`
	Features      []Feature              `json:"features" validate:"required,min=1,dive"`
	Journeys      []Journey              `json:"journeys" validate:"required,min=1,dive"`
	Design        *Design                `json:"design,omitempty"`
	Quality       map[string]interface{} `json:"quality" validate:"required"`
	Delivery      Delivery               `json:"delivery" validate:"required"`
	Dependencies  *Dependencies          `json:"dependencies,omitempty"`
	Extensions    map[string]interface{} `json:"extensions,omitempty"`
}

// SupportedSchemaVersions is the closed set of schema_version strings this
// validator accepts.
var SupportedSchemaVersions = map[string]bool{
	"2026.1": true,
}
