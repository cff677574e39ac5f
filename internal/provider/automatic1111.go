package provider

import (
	"context"
	"net/http"
	"strings"

	"genrouter/internal/core"
	"genrouter/internal/util"
)

// Automatic1111 defaults
const (
	Automatic1111DefaultURL = "http://localhost:7860"
	a1111Sampler            = "DPM++ 2M Karras"
)

// Automatic1111Adapter serves image generation from a Stable Diffusion WebUI.
type Automatic1111Adapter struct {
	name    string
	baseURL string
	client  *http.Client
	bounds  core.ImageBounds
	logger  core.Logger
}

// NewAutomatic1111Adapter creates an adapter for the WebUI at baseURL.
// Zero bounds leave the global limits in force.
func NewAutomatic1111Adapter(name, baseURL string, bounds core.ImageBounds, client *http.Client, logger core.Logger) *Automatic1111Adapter {
	if name == "" {
		name = "automatic1111"
	}
	if baseURL == "" {
		baseURL = Automatic1111DefaultURL
	}
	if logger == nil {
		logger = &core.NopLogger{}
	}
	return &Automatic1111Adapter{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		bounds:  bounds,
		logger:  logger,
	}
}

type txt2imgRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	NIter          int     `json:"n_iter"`
	Steps          int     `json:"steps"`
	CFGScale       float64 `json:"cfg_scale"`
	Seed           int64   `json:"seed"`
	SamplerName    string  `json:"sampler_name"`
	SaveImages     bool    `json:"save_images"`
}

type txt2imgResponse struct {
	Images []string `json:"images"`
	Info   string   `json:"info"`
}

type txt2imgInfo struct {
	Seed int64 `json:"seed"`
}

type sdModel struct {
	Title     string `json:"title"`
	ModelName string `json:"model_name"`
}

type sdOptions struct {
	Checkpoint string `json:"sd_model_checkpoint"`
}

func (a *Automatic1111Adapter) Name() string {
	return a.name
}

// ImageBounds reports the limits of this backend.
func (a *Automatic1111Adapter) ImageBounds() core.ImageBounds {
	return a.bounds
}

// GenerateImage switches the loaded checkpoint if needed and runs txt2img.
func (a *Automatic1111Adapter) GenerateImage(ctx context.Context, req *core.ImageRequest) (*core.ImageResult, error) {
	if req.ModelID != "" {
		a.switchModel(ctx, req.ModelID)
	}

	width := util.ValueOr(req.Width, core.DefaultImageSize)
	height := util.ValueOr(req.Height, core.DefaultImageSize)
	steps := util.ValueOr(req.Steps, core.DefaultSteps)
	guidance := util.ValueOr(req.GuidanceScale, core.DefaultGuidanceScale)

	body := txt2imgRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Width:          width,
		Height:         height,
		NIter:          util.ValueOr(req.NumImages, core.DefaultNumImages),
		Steps:          steps,
		CFGScale:       guidance,
		Seed:           util.ValueOr(req.Seed, -1),
		SamplerName:    a1111Sampler,
	}

	var resp txt2imgResponse
	if err := callJSON(ctx, a.client, http.MethodPost, a.baseURL+"/sdapi/v1/txt2img", body, &resp); err != nil {
		return nil, err
	}

	images := make([]string, 0, len(resp.Images))
	for _, img := range resp.Images {
		images = append(images, "data:"+core.ImageFormatPNG+";base64,"+img)
	}

	meta := core.ImageMetadata{
		Width:         width,
		Height:        height,
		Steps:         steps,
		GuidanceScale: guidance,
		Seed:          req.Seed,
	}
	var info txt2imgInfo
	if resp.Info != "" && util.UnmarshalJSON([]byte(resp.Info), &info) == nil {
		meta.Seed = &info.Seed
	}

	return &core.ImageResult{Images: images, ModelID: req.ModelID, Metadata: meta}, nil
}

// switchModel loads the checkpoint matching name. Failures keep whatever
// checkpoint is loaded.
func (a *Automatic1111Adapter) switchModel(ctx context.Context, name string) {
	var models []sdModel
	if err := callJSON(ctx, a.client, http.MethodGet, a.baseURL+"/sdapi/v1/sd-models", nil, &models); err != nil {
		a.logger.Warn("automatic1111: list models failed: %v", err)
		return
	}

	want := strings.ToLower(name)
	var match string
	for _, m := range models {
		title := m.ModelName
		if title == "" {
			title = m.Title
		}
		have := strings.ToLower(title)
		if strings.Contains(have, want) || strings.Contains(want, have) {
			match = m.Title
			break
		}
	}
	if match == "" {
		a.logger.Warn("automatic1111: model %q not found, using current checkpoint", name)
		return
	}

	var current sdOptions
	if err := callJSON(ctx, a.client, http.MethodGet, a.baseURL+"/sdapi/v1/options", nil, &current); err == nil && current.Checkpoint == match {
		return
	}

	a.logger.Info("automatic1111: switching checkpoint to %s", match)
	if err := callJSON(ctx, a.client, http.MethodPost, a.baseURL+"/sdapi/v1/options", sdOptions{Checkpoint: match}, nil); err != nil {
		a.logger.Warn("automatic1111: switch checkpoint failed: %v", err)
	}
}

// HealthCheck lists checkpoints.
func (a *Automatic1111Adapter) HealthCheck(ctx context.Context) error {
	return probe(ctx, a.client, a.baseURL+"/sdapi/v1/sd-models")
}
