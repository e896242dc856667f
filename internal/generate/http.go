package generate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/tutormux/pkg/errors"
	"github.com/blueberrycongee/tutormux/pkg/types"
)

// HTTPConfig configures the HTTP generation backend.
type HTTPConfig struct {
	URL           string        `yaml:"url"`            // Completion endpoint
	APIKey        string        `yaml:"api_key"`        // Bearer token, empty disables auth
	StandardModel string        `yaml:"standard_model"` // Model name for the standard tier
	AdvancedModel string        `yaml:"advanced_model"` // Model name for the advanced tier
	Timeout       time.Duration `yaml:"timeout"`        // Transport-level timeout (default: 60s)
}

// HTTPGenerator calls a remote completion endpoint. The request carries the
// prompt and the tier-mapped model name; the response body's text field is
// returned untouched for downstream validation.
type HTTPGenerator struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPGenerator creates a generator over a remote completion endpoint.
func NewHTTPGenerator(cfg HTTPConfig) (*HTTPGenerator, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("generator url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &HTTPGenerator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type completionRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Text string `json:"text"`
}

// Generate implements Generator.
func (g *HTTPGenerator) Generate(ctx context.Context, prompt string, tier types.ModelTier) (string, error) {
	model := g.cfg.StandardModel
	if tier == types.TierAdvanced {
		model = g.cfg.AdvancedModel
	}

	payload, err := json.Marshal(completionRequest{Model: model, Prompt: prompt})
	if err != nil {
		return "", errors.NewInternalError("encode generation request: " + err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return "", errors.NewInternalError("build generation request: " + err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", errors.NewTransportError("generation call failed: " + err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.NewTransportError("read generation response: " + err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		return "", errors.NewTransportError(
			fmt.Sprintf("generation backend returned %d", resp.StatusCode))
	}

	var out completionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", errors.NewMalformedOutputError("decode generation response: " + err.Error())
	}
	return out.Text, nil
}
