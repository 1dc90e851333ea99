package engines

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	api "github.com/archivekit/conversion-assistant/api/v1alpha1"
	"github.com/archivekit/conversion-assistant/internal/session"
)

// report is the JSON document written at the end of a conversion job.
type report struct {
	SessionID         string                             `json:"sessionId"`
	GeneratedAt       time.Time                          `json:"generatedAt"`
	OutputPath        string                             `json:"outputPath"`
	Checksum          string                             `json:"checksum"`
	ValidationStatus  string                             `json:"validationStatus"`
	Issues            []api.ValidationIssue              `json:"issues,omitempty"`
	Summary           map[string]int                     `json:"summary,omitempty"`
	CorrectionAttempt int                                `json:"correctionAttempts"`
	Metadata          map[string]any                     `json:"metadata"`
	Provenance        map[string]session.FieldProvenance `json:"provenance"`
}

// WriteReport renders the conversion report for the session into dir and
// returns its path.
func WriteReport(state *session.Session, dir string) (string, error) {
	doc := report{
		SessionID:         state.ID.String(),
		GeneratedAt:       time.Now().UTC(),
		OutputPath:        state.OutputPath(),
		Checksum:          state.Checksum(),
		CorrectionAttempt: state.CorrectionAttempt(),
		Metadata:          state.Metadata(),
		Provenance:        state.ProvenanceMap(),
	}
	if result, ok := state.LastValidationResult(); ok {
		doc.ValidationStatus = string(result.OverallStatus)
		doc.Issues = result.Issues
		doc.Summary = result.Summary
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("conversion-report-%s.json", state.ID))

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
