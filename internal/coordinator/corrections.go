package coordinator

import (
	"context"
	"fmt"

	api "github.com/archivekit/conversion-assistant/api/v1alpha1"
	"github.com/archivekit/conversion-assistant/internal/advisory"
	"github.com/archivekit/conversion-assistant/internal/engines"
	"github.com/archivekit/conversion-assistant/internal/metadata"
	"github.com/archivekit/conversion-assistant/internal/session"
	"github.com/archivekit/conversion-assistant/pkg/metrics"
)

// CorrectionContext partitions the advisory's suggestions for one decision.
// Ephemeral: never stored beyond the handling of that decision.
type CorrectionContext struct {
	AutoFixable       []engines.Correction
	UserInputRequired []userInputRequest
	Analysis          string
	RecommendedAction string
}

type userInputRequest struct {
	Field       string
	Prompt      string
	CheckName   string
	Explanation string
}

// analyzeCorrections consults the advisory and partitions its suggestions.
// Advisory degradation returns an empty context and no error; the caller
// proceeds with a plain re-run.
func (c *Coordinator) analyzeCorrections(ctx context.Context, state *session.Session, result api.ValidationResult) (CorrectionContext, error) {
	if c.advisor == nil {
		return CorrectionContext{RecommendedAction: "reconvert"}, nil
	}

	analysis, err := c.advisor.AnalyzeCorrections(ctx, result, state.Metadata())
	if err != nil {
		c.log.Warnw("correction advisory failed, proceeding without analysis", "error", err)
		state.Append(session.LevelWarning, "correction advisory unavailable", map[string]any{"error": err.Error()})
		metrics.IncAdvisoryFallback("corrections")
		return CorrectionContext{RecommendedAction: "reconvert"}, nil
	}

	return c.partition(analysis), nil
}

// partition splits suggestions into auto-fixable fixes and
// needs-user-input requests. A suggestion is auto-fixable when the advisory
// flagged it actionable and its value passes the field's fixed rule;
// everything else is routed to the user, with known fields getting their
// targeted prompts.
func (c *Coordinator) partition(analysis advisory.CorrectionAnalysis) CorrectionContext {
	cc := CorrectionContext{
		Analysis:          analysis.Analysis,
		RecommendedAction: "apply_corrections",
	}

	for _, s := range analysis.Suggestions {
		if s.Actionable && s.Field != "" {
			if err := metadata.CheckValue(s.Field, s.SuggestedValue); err == nil {
				cc.AutoFixable = append(cc.AutoFixable, engines.Correction{
					Field:  s.Field,
					Value:  s.SuggestedValue,
					Origin: fmt.Sprintf("advisory suggestion for %s", s.CheckName),
				})
				continue
			}
			c.log.Debugw("actionable suggestion rejected by field rule", "field", s.Field, "value", s.SuggestedValue)
		}
		cc.UserInputRequired = append(cc.UserInputRequired, userInputRequest{
			Field:       s.Field,
			Prompt:      metadata.PromptFor(s.Field),
			CheckName:   s.CheckName,
			Explanation: s.Explanation,
		})
	}

	if len(cc.AutoFixable) == 0 && len(cc.UserInputRequired) == 0 {
		cc.RecommendedAction = "reconvert"
	}
	return cc
}

func questionList(requests []userInputRequest) []string {
	questions := make([]string, 0, len(requests))
	seen := map[string]bool{}
	for _, req := range requests {
		if seen[req.Prompt] {
			continue
		}
		seen[req.Prompt] = true
		questions = append(questions, req.Prompt)
	}
	return questions
}

func fixSummaries(fixes []engines.Correction) []map[string]any {
	out := make([]map[string]any, 0, len(fixes))
	for _, f := range fixes {
		out = append(out, map[string]any{"field": f.Field, "value": f.Value})
	}
	return out
}
