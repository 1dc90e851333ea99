// Package engines defines the boundary to the external conversion and
// validation engines and registers the router handlers that drive them. The
// core treats both engines as opaque collaborators.
package engines

import (
	"context"

	api "github.com/archivekit/conversion-assistant/api/v1alpha1"
)

// Router groups and operations the engines answer on.
const (
	GroupConversion = "conversion"
	GroupValidation = "validation"
	GroupReport     = "report"

	OpRunConversion    = "run_conversion"
	OpApplyCorrections = "apply_corrections"
	OpDetectFormat     = "detect_format"
	OpRunValidation    = "run_validation"
	OpGenerateReport   = "generate_report"
)

// Correction is one metadata fix handed to the conversion engine.
type Correction struct {
	Field  string `json:"field"`
	Value  string `json:"value"`
	Origin string `json:"origin,omitempty"`
}

// ConversionRequest is the input to a conversion run.
type ConversionRequest struct {
	InputPath string         `json:"inputPath"`
	Format    string         `json:"format,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// FormatDetection is the result of probing the input file.
type FormatDetection struct {
	Format     string         `json:"format"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Conversion is the external conversion engine.
type Conversion interface {
	DetectFormat(ctx context.Context, inputPath string) (FormatDetection, error)
	Run(ctx context.Context, req ConversionRequest) (api.ConversionResult, error)
	ApplyCorrections(ctx context.Context, outputPath string, corrections []Correction) (api.ConversionResult, error)
}

// Validation is the external validation engine.
type Validation interface {
	Run(ctx context.Context, outputPath string) (api.ValidationResult, error)
}
