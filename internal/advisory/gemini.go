package advisory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	api "github.com/archivekit/conversion-assistant/api/v1alpha1"
	"github.com/archivekit/conversion-assistant/internal/jsonutil"
)

const retrySystemPrompt = `You are assisting a pipeline that converts scientific data files into a
standardized archival format. A conversion was validated and problems were
found. Judge whether another automatic correction attempt is worthwhile,
whether the user should be asked for missing information, or whether the
pipeline should stop. Respond with ONLY a JSON object matching the schema
you were given. Keep "message" short and suitable for direct display.`

const correctionSystemPrompt = `You are assisting a pipeline that converts scientific data files into a
standardized archival format. Given the validation issues and the metadata
collected so far, propose corrections. Mark a suggestion "actionable" only
when you can name the metadata field and the exact value to write without
asking the user. Respond with ONLY a JSON object matching the schema.`

// GeminiAdvisor implements Advisor against the Gemini API.
type GeminiAdvisor struct {
	client *genai.Client
	model  string
	log    *zap.SugaredLogger
}

func NewGeminiAdvisor(ctx context.Context, apiKey, model string) (*GeminiAdvisor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiAdvisor{
		client: client,
		model:  model,
		log:    zap.S().Named("advisory"),
	}, nil
}

func (g *GeminiAdvisor) RecommendRetry(ctx context.Context, req RetryRequest) (RetryRecommendation, error) {
	prompt, err := buildRetryPrompt(req)
	if err != nil {
		return RetryRecommendation{}, err
	}

	raw, err := g.generate(ctx, retrySystemPrompt, prompt)
	if err != nil {
		return RetryRecommendation{}, err
	}

	return parseRetryRecommendation(raw)
}

// parseRetryRecommendation enforces the output contract: a recommendation is
// only usable when it explains itself and asking the user comes with
// questions to relay.
func parseRetryRecommendation(raw string) (RetryRecommendation, error) {
	rec, err := jsonutil.Unmarshal[RetryRecommendation](raw)
	if err != nil {
		return RetryRecommendation{}, err
	}
	if rec.Reasoning == "" || rec.Message == "" {
		return RetryRecommendation{}, fmt.Errorf("advisory returned empty reasoning or message")
	}
	if rec.AskUser && len(rec.QuestionsForUser) == 0 {
		return RetryRecommendation{}, fmt.Errorf("advisory asked for user input without questions")
	}
	return rec, nil
}

func (g *GeminiAdvisor) AnalyzeCorrections(ctx context.Context, result api.ValidationResult, metadata map[string]any) (CorrectionAnalysis, error) {
	prompt, err := buildCorrectionPrompt(result, metadata)
	if err != nil {
		return CorrectionAnalysis{}, err
	}

	raw, err := g.generate(ctx, correctionSystemPrompt, prompt)
	if err != nil {
		return CorrectionAnalysis{}, err
	}

	return parseCorrectionAnalysis(raw)
}

func parseCorrectionAnalysis(raw string) (CorrectionAnalysis, error) {
	analysis, err := jsonutil.Unmarshal[CorrectionAnalysis](raw)
	if err != nil {
		return CorrectionAnalysis{}, err
	}
	if analysis.Analysis == "" {
		return CorrectionAnalysis{}, fmt.Errorf("advisory returned empty analysis")
	}
	return analysis, nil
}

func (g *GeminiAdvisor) generate(ctx context.Context, system, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		},
		ResponseMIMEType: "application/json",
	}
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("advisory call failed: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("empty response from advisory service")
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("blank response from advisory service")
	}
	g.log.Debugw("advisory responded", "length", len(text))
	return text, nil
}

func buildRetryPrompt(req RetryRequest) (string, error) {
	payload, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal retry request: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("## Correction attempt review\n\n")
	fmt.Fprintf(&sb, "Attempt %d of %d.\n\n", req.Attempt, req.MaxAttempts)
	sb.WriteString("Current state:\n```json\n")
	sb.Write(payload)
	sb.WriteString("\n```\n\n")
	sb.WriteString("Required output schema:\n")
	sb.WriteString(`{"shouldRetry": bool, "strategy": "retry"|"ask-user"|"stop", "approach": string, "reasoning": string, "askUser": bool, "questionsForUser": [string], "message": string}` + "\n")
	return sb.String(), nil
}

func buildCorrectionPrompt(result api.ValidationResult, metadata map[string]any) (string, error) {
	resultJSON, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal validation result: %w", err)
	}
	metadataJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("## Validation issue analysis\n\n")
	sb.WriteString("Validation result:\n```json\n")
	sb.Write(resultJSON)
	sb.WriteString("\n```\n\nCollected metadata:\n```json\n")
	sb.Write(metadataJSON)
	sb.WriteString("\n```\n\n")
	sb.WriteString("Required output schema:\n")
	sb.WriteString(`{"analysis": string, "suggestions": [{"checkName": string, "field": string, "suggestedValue": string, "actionable": bool, "explanation": string}]}` + "\n")
	return sb.String(), nil
}
