package engines

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	api "github.com/archivekit/conversion-assistant/api/v1alpha1"
	"github.com/archivekit/conversion-assistant/internal/router"
	"github.com/archivekit/conversion-assistant/internal/session"
)

// HandlerConfig tunes the engine-facing router handlers.
type HandlerConfig struct {
	CallTimeout          time.Duration
	ProgressPollInterval time.Duration
	ObserverJoinTimeout  time.Duration
	ReportDir            string
}

// RegisterHandlers wires the conversion, validation and report operations
// onto the router.
func RegisterHandlers(r *router.Router, conv Conversion, val Validation, cfg HandlerConfig) {
	h := &handlers{conversion: conv, validation: val, cfg: cfg}

	r.Register(GroupConversion, OpDetectFormat, h.detectFormat)
	r.Register(GroupConversion, OpRunConversion, h.runConversion)
	r.Register(GroupConversion, OpApplyCorrections, h.applyCorrections)
	r.Register(GroupValidation, OpRunValidation, h.runValidation)
	r.Register(GroupReport, OpGenerateReport, h.generateReport)
}

type handlers struct {
	conversion Conversion
	validation Validation
	cfg        HandlerConfig
}

func (h *handlers) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.cfg.CallTimeout)
}

func (h *handlers) detectFormat(ctx context.Context, env api.Envelope, state *session.Session) (map[string]any, error) {
	inputPath := stringParam(env, "inputPath", state.InputPath())
	if inputPath == "" {
		return nil, router.NewError(router.ErrMissingParameters, "detect_format requires inputPath")
	}

	ctx, cancel := h.callContext(ctx)
	defer cancel()

	detection, err := h.conversion.DetectFormat(ctx, inputPath)
	if err != nil {
		return nil, err
	}

	for field, value := range detection.Metadata {
		state.SetInferredMetadata(field, value, detection.Confidence, fmt.Sprintf("detected from %s header", detection.Format))
	}
	state.Append(session.LevelInfo, "input format detected", map[string]any{
		"format":     detection.Format,
		"confidence": detection.Confidence,
	})
	return map[string]any{"format": detection.Format, "confidence": detection.Confidence}, nil
}

func (h *handlers) runConversion(ctx context.Context, env api.Envelope, state *session.Session) (map[string]any, error) {
	inputPath := stringParam(env, "inputPath", state.InputPath())
	if inputPath == "" {
		return nil, router.NewError(router.ErrMissingParameters, "run_conversion requires inputPath")
	}
	outputHint := stringParam(env, "outputPath", state.OutputPath())

	ctx, cancel := h.callContext(ctx)
	defer cancel()

	observer := h.startObserver(state, inputPath, outputHint)
	defer observer.Stop()

	result, err := h.conversion.Run(ctx, ConversionRequest{
		InputPath: inputPath,
		Format:    stringParam(env, "format", ""),
		Metadata:  state.Metadata(),
	})
	if err != nil {
		return nil, err
	}

	state.SetArtifact(result.OutputPath, result.Checksum)
	state.SetProgress(100)
	return map[string]any{"outputPath": result.OutputPath, "checksum": result.Checksum}, nil
}

func (h *handlers) applyCorrections(ctx context.Context, env api.Envelope, state *session.Session) (map[string]any, error) {
	corrections, err := correctionsParam(env)
	if err != nil {
		return nil, router.NewError(router.ErrMissingParameters, "%v", err)
	}
	if len(corrections) == 0 {
		return nil, router.NewError(router.ErrMissingParameters, "apply_corrections requires a non-empty corrections list")
	}

	ctx, cancel := h.callContext(ctx)
	defer cancel()

	result, err := h.conversion.ApplyCorrections(ctx, state.OutputPath(), corrections)
	if err != nil {
		return nil, err
	}

	for _, c := range corrections {
		state.SetAutoCorrectedMetadata(c.Field, c.Value, c.Origin)
	}
	state.SetArtifact(result.OutputPath, result.Checksum)
	return map[string]any{"outputPath": result.OutputPath, "checksum": result.Checksum, "applied": len(corrections)}, nil
}

func (h *handlers) runValidation(ctx context.Context, env api.Envelope, state *session.Session) (map[string]any, error) {
	outputPath := stringParam(env, "outputPath", state.OutputPath())
	if outputPath == "" {
		return nil, router.NewError(router.ErrMissingParameters, "run_validation requires outputPath")
	}

	ctx, cancel := h.callContext(ctx)
	defer cancel()

	result, err := h.validation.Run(ctx, outputPath)
	if err != nil {
		return nil, err
	}

	state.SetLastValidationResult(result)
	switch result.OverallStatus {
	case api.ValidationPassed:
		state.UpdateValidationStatus(session.ValidationStatusPassed)
	case api.ValidationPassedWithIssues:
		state.UpdateValidationStatus(session.ValidationStatusPassedWithIssues)
	default:
		state.UpdateValidationStatus(session.ValidationStatusFailed)
	}

	return map[string]any{
		"overallStatus": string(result.OverallStatus),
		"issueCount":    len(result.Issues),
	}, nil
}

func (h *handlers) generateReport(ctx context.Context, env api.Envelope, state *session.Session) (map[string]any, error) {
	path, err := WriteReport(state, h.cfg.ReportDir)
	if err != nil {
		return nil, err
	}
	state.Append(session.LevelInfo, "report generated", map[string]any{"reportPath": path})
	return map[string]any{"reportPath": path}, nil
}

// startObserver sizes the expectation from the input file. Conversion output
// is usually within the same order of magnitude as the input.
func (h *handlers) startObserver(state *session.Session, inputPath, outputPath string) *progressObserver {
	var expected int64
	if info, err := os.Stat(inputPath); err == nil {
		expected = info.Size()
	}
	interval := h.cfg.ProgressPollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	join := h.cfg.ObserverJoinTimeout
	if join <= 0 {
		join = 5 * time.Second
	}
	observer := newProgressObserver(state, outputPath, expected, interval, join)
	observer.Start()
	return observer
}

func stringParam(env api.Envelope, key, fallback string) string {
	if v, ok := env.Context[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// correctionsParam accepts both in-process typed corrections and the JSON
// shape produced by wire transports.
func correctionsParam(env api.Envelope) ([]Correction, error) {
	raw, ok := env.Context["corrections"]
	if !ok {
		return nil, fmt.Errorf("apply_corrections requires corrections")
	}
	if typed, ok := raw.([]Correction); ok {
		return typed, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("corrections are not serializable: %w", err)
	}
	var out []Correction
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("corrections have unexpected shape: %w", err)
	}
	return out, nil
}
