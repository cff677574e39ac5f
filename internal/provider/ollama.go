package provider

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"

	"genrouter/internal/core"
	"genrouter/internal/util"
)

// Ollama defaults
const (
	OllamaDefaultURL         = "http://localhost:11434"
	ollamaDefaultTemperature = 0.7
	ollamaDefaultMaxTokens   = 2048
)

// OllamaAdapter serves text generation from an Ollama server.
type OllamaAdapter struct {
	name    string
	baseURL string
	client  *http.Client
	logger  core.Logger
}

// NewOllamaAdapter creates an adapter for the Ollama server at baseURL.
func NewOllamaAdapter(name, baseURL string, client *http.Client, logger core.Logger) *OllamaAdapter {
	if name == "" {
		name = "ollama"
	}
	if baseURL == "" {
		baseURL = OllamaDefaultURL
	}
	if logger == nil {
		logger = &core.NopLogger{}
	}
	return &OllamaAdapter{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error,omitempty"`
}

func (a *OllamaAdapter) Name() string {
	return a.name
}

func (a *OllamaAdapter) buildRequest(req *core.TextRequest, stream bool) ollamaGenerateRequest {
	prompt := req.Prompt
	if req.SystemPrompt != "" {
		prompt = req.SystemPrompt + "\n\n" + req.Prompt
	}
	return ollamaGenerateRequest{
		Model:  req.ModelID,
		Prompt: prompt,
		Stream: stream,
		Options: ollamaOptions{
			Temperature: util.ValueOr(req.Temperature, ollamaDefaultTemperature),
			NumPredict:  util.ValueOr(req.MaxTokens, ollamaDefaultMaxTokens),
		},
	}
}

// GenerateText runs a non-streaming completion.
func (a *OllamaAdapter) GenerateText(ctx context.Context, req *core.TextRequest) (*core.TextResult, error) {
	var resp ollamaGenerateResponse
	if err := callJSON(ctx, a.client, http.MethodPost, a.baseURL+"/api/generate", a.buildRequest(req, false), &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("ollama: %s", resp.Error)
	}

	finish := "length"
	if resp.Done {
		finish = "stop"
	}
	return &core.TextResult{
		Content:      resp.Response,
		ModelID:      resp.Model,
		FinishReason: finish,
		Usage:        usageFor(req, resp),
	}, nil
}

// usageFor reports Ollama's token counts, estimating the ones it omits
// (cached prompts report no prompt_eval_count).
func usageFor(req *core.TextRequest, resp ollamaGenerateResponse) *core.Usage {
	prompt := resp.PromptEvalCount
	if prompt == 0 {
		prompt = util.EstimateTokenCount(req.SystemPrompt) + util.EstimateTokenCount(req.Prompt)
	}
	completion := resp.EvalCount
	if completion == 0 {
		completion = util.EstimateTokenCount(resp.Response)
	}
	return &core.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// StreamText reads Ollama's newline-delimited JSON stream and forwards each
// non-empty response fragment to out.
func (a *OllamaAdapter) StreamText(ctx context.Context, req *core.TextRequest, out chan<- string) error {
	resp, err := doJSON(ctx, a.client, http.MethodPost, a.baseURL+"/api/generate", a.buildRequest(req, true))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), core.MaxScannerBufferSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var chunk ollamaGenerateResponse
		if err := util.UnmarshalJSON([]byte(line), &chunk); err != nil {
			a.logger.Debug("ollama: skipping malformed stream line: %v", err)
			continue
		}
		if chunk.Error != "" {
			return fmt.Errorf("ollama: %s", chunk.Error)
		}
		if chunk.Response != "" {
			if err := send(ctx, out, chunk.Response); err != nil {
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("stream read error: %w", err)
	}
	return nil
}

// HealthCheck lists local models.
func (a *OllamaAdapter) HealthCheck(ctx context.Context) error {
	return probe(ctx, a.client, a.baseURL+"/api/tags")
}
