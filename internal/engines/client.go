package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	api "github.com/archivekit/conversion-assistant/api/v1alpha1"
	"github.com/archivekit/conversion-assistant/internal/router"
)

const defaultClientTimeout = 30 * time.Minute

// engineError is the wire shape collaborators use for failures. The code and
// message are propagated verbatim to the caller.
type engineError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type httpEngine struct {
	baseURL string
	client  *http.Client
}

func newHTTPEngine(baseURL string) httpEngine {
	return httpEngine{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultClientTimeout},
	}
}

func (e httpEngine) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal engine request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build engine request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "call %s", path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read %s response", path)
	}

	if resp.StatusCode != http.StatusOK {
		var ee engineError
		if err := json.Unmarshal(data, &ee); err == nil && ee.Code != "" {
			return router.NewError(ee.Code, "%s", ee.Message)
		}
		return fmt.Errorf("engine returned status %d for %s", resp.StatusCode, path)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "decode %s response", path)
	}
	return nil
}

// ConversionClient talks to the conversion engine over HTTP.
type ConversionClient struct {
	httpEngine
}

var _ Conversion = (*ConversionClient)(nil)

func NewConversionClient(baseURL string) *ConversionClient {
	return &ConversionClient{newHTTPEngine(baseURL)}
}

func (c *ConversionClient) DetectFormat(ctx context.Context, inputPath string) (FormatDetection, error) {
	var out FormatDetection
	err := c.post(ctx, "/v1/detect", map[string]string{"inputPath": inputPath}, &out)
	return out, err
}

func (c *ConversionClient) Run(ctx context.Context, req ConversionRequest) (api.ConversionResult, error) {
	var out api.ConversionResult
	err := c.post(ctx, "/v1/convert", req, &out)
	return out, err
}

func (c *ConversionClient) ApplyCorrections(ctx context.Context, outputPath string, corrections []Correction) (api.ConversionResult, error) {
	var out api.ConversionResult
	err := c.post(ctx, "/v1/corrections", map[string]any{
		"outputPath":  outputPath,
		"corrections": corrections,
	}, &out)
	return out, err
}

// ValidationClient talks to the validation engine over HTTP.
type ValidationClient struct {
	httpEngine
}

var _ Validation = (*ValidationClient)(nil)

func NewValidationClient(baseURL string) *ValidationClient {
	return &ValidationClient{newHTTPEngine(baseURL)}
}

func (c *ValidationClient) Run(ctx context.Context, outputPath string) (api.ValidationResult, error) {
	var out api.ValidationResult
	err := c.post(ctx, "/v1/validate", map[string]string{"outputPath": outputPath}, &out)
	return out, err
}
