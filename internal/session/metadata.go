package session

import (
	"time"
)

type ProvenanceSource string

const (
	SourceUserSpecified ProvenanceSource = "user-specified"
	SourceInferred      ProvenanceSource = "inferred"
	SourceAutoCorrected ProvenanceSource = "auto-corrected"
	SourceDefault       ProvenanceSource = "default"
)

// FieldProvenance records where a metadata value came from and how much it
// should be trusted.
type FieldProvenance struct {
	Source      ProvenanceSource
	Confidence  float64
	Origin      string
	NeedsReview bool
	Timestamp   time.Time
}

// SetMetadata writes a metadata field together with its provenance. Every key
// present in the metadata map has a corresponding provenance entry; this is
// the only write path, so the invariant holds by construction.
func (s *Session) SetMetadata(key string, value any, prov FieldProvenance) {
	if prov.Timestamp.IsZero() {
		prov.Timestamp = time.Now().UTC()
	}
	s.metadata[key] = value
	s.provenance[key] = prov

	s.Append(LevelInfo, "metadata field set", map[string]any{
		"field":      key,
		"source":     string(prov.Source),
		"confidence": prov.Confidence,
	})
	switch prov.Source {
	case SourceUserSpecified:
		s.userProvidedInput = true
	case SourceAutoCorrected:
		s.autoCorrectionsApplied = true
	}
}

// SetUserMetadata records a value the user typed in. Full confidence, no
// review needed.
func (s *Session) SetUserMetadata(key string, value any, origin string) {
	s.SetMetadata(key, value, FieldProvenance{
		Source:     SourceUserSpecified,
		Confidence: 1.0,
		Origin:     origin,
	})
}

// SetInferredMetadata records a value inferred from the input file.
func (s *Session) SetInferredMetadata(key string, value any, confidence float64, origin string) {
	s.SetMetadata(key, value, FieldProvenance{
		Source:      SourceInferred,
		Confidence:  confidence,
		Origin:      origin,
		NeedsReview: confidence < 0.8,
	})
}

// SetAutoCorrectedMetadata records a value written by an automatic
// correction. Always flagged for review.
func (s *Session) SetAutoCorrectedMetadata(key string, value any, origin string) {
	s.SetMetadata(key, value, FieldProvenance{
		Source:      SourceAutoCorrected,
		Confidence:  0.7,
		Origin:      origin,
		NeedsReview: true,
	})
}

// Metadata returns a copy of the metadata map.
func (s *Session) Metadata() map[string]any {
	out := make(map[string]any, len(s.metadata))
	for k, v := range s.metadata {
		out[k] = v
	}
	return out
}

// Provenance returns the provenance entry for a field.
func (s *Session) Provenance(key string) (FieldProvenance, bool) {
	p, ok := s.provenance[key]
	return p, ok
}

// ProvenanceMap returns a copy of the whole provenance map.
func (s *Session) ProvenanceMap() map[string]FieldProvenance {
	out := make(map[string]FieldProvenance, len(s.provenance))
	for k, v := range s.provenance {
		out[k] = v
	}
	return out
}
