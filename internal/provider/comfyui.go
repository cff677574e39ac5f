package provider

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"genrouter/internal/core"
	"genrouter/internal/util"
)

// ComfyUI defaults
const (
	ComfyUIDefaultURL      = "http://localhost:8188"
	ComfyUIDefaultPoll     = 3 * time.Second
	ComfyUIDefaultMaxPolls = 120
	comfyCheckpoint        = "svd_xt_1_1.safetensors"
)

// ComfyUIAdapter serves video generation from a ComfyUI server by queueing
// a Stable Video Diffusion workflow and polling its history.
type ComfyUIAdapter struct {
	name         string
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	maxPolls     int
	logger       core.Logger
}

// ComfyUIOptions tunes polling.
type ComfyUIOptions struct {
	PollInterval time.Duration
	MaxPolls     int
}

// NewComfyUIAdapter creates an adapter for the ComfyUI server at baseURL.
func NewComfyUIAdapter(name, baseURL string, opts ComfyUIOptions, client *http.Client, logger core.Logger) *ComfyUIAdapter {
	if name == "" {
		name = "comfyui"
	}
	if baseURL == "" {
		baseURL = ComfyUIDefaultURL
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = ComfyUIDefaultPoll
	}
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = ComfyUIDefaultMaxPolls
	}
	if logger == nil {
		logger = &core.NopLogger{}
	}
	return &ComfyUIAdapter{
		name:         name,
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       client,
		pollInterval: opts.PollInterval,
		maxPolls:     opts.MaxPolls,
		logger:       logger,
	}
}

type comfyNode struct {
	Inputs    map[string]any `json:"inputs"`
	ClassType string         `json:"class_type"`
}

type comfyQueueRequest struct {
	Prompt   map[string]comfyNode `json:"prompt"`
	ClientID string               `json:"client_id,omitempty"`
}

type comfyQueueResponse struct {
	PromptID string `json:"prompt_id"`
}

type comfyOutputImage struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

type comfyHistoryEntry struct {
	Status *struct {
		Completed bool   `json:"completed"`
		StatusStr string `json:"status_str"`
	} `json:"status"`
	Outputs map[string]struct {
		Images []comfyOutputImage `json:"images"`
		Gifs   []comfyOutputImage `json:"gifs"`
	} `json:"outputs"`
}

var errComfyFailed = errors.New("comfyui workflow failed")

func (a *ComfyUIAdapter) Name() string {
	return a.name
}

// GenerateVideo queues the workflow and waits for an output file.
func (a *ComfyUIAdapter) GenerateVideo(ctx context.Context, req *core.VideoRequest) (*core.VideoResult, error) {
	duration := util.ValueOr(req.Duration, core.DefaultVideoDuration)
	fps := util.ValueOr(req.FPS, core.DefaultVideoFPS)
	resolution := req.Resolution
	if resolution == "" {
		resolution = core.DefaultVideoResolution
	}
	seed := util.ValueOr(req.Seed, rand.Int64N(1_000_000))

	var queued comfyQueueResponse
	body := comfyQueueRequest{
		Prompt:   videoWorkflow(resolution, duration, fps, seed),
		ClientID: util.GenerateRandomID("genrouter-"),
	}
	if err := callJSON(ctx, a.client, http.MethodPost, a.baseURL+"/prompt", body, &queued); err != nil {
		return nil, err
	}
	if queued.PromptID == "" {
		return nil, fmt.Errorf("comfyui: queue response has no prompt_id")
	}
	a.logger.Debug("comfyui: queued prompt %s", queued.PromptID)

	videoURL, err := a.poll(ctx, queued.PromptID)
	if err != nil {
		return nil, err
	}

	return &core.VideoResult{
		VideoURL: videoURL,
		ModelID:  req.ModelID,
		Metadata: core.VideoMetadata{
			Duration:   duration,
			FPS:        fps,
			Resolution: resolution,
			Seed:       &seed,
		},
	}, nil
}

func (a *ComfyUIAdapter) poll(ctx context.Context, promptID string) (string, error) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for i := 0; i < a.maxPolls; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		var history map[string]comfyHistoryEntry
		if err := callJSON(ctx, a.client, http.MethodGet, a.baseURL+"/history/"+url.PathEscape(promptID), nil, &history); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			a.logger.Debug("comfyui: history poll for %s failed: %v", promptID, err)
			continue
		}

		entry, ok := history[promptID]
		if !ok || entry.Status == nil {
			continue
		}
		if entry.Status.StatusStr == "error" {
			return "", errComfyFailed
		}
		if !entry.Status.Completed {
			continue
		}
		if out, ok := firstOutput(entry); ok {
			return a.viewURL(out), nil
		}
		return "", fmt.Errorf("comfyui: prompt %s completed without output", promptID)
	}

	return "", core.NewProviderError(a.name, core.ProviderTimeout,
		fmt.Errorf("video generation did not finish after %d polls", a.maxPolls))
}

func firstOutput(entry comfyHistoryEntry) (comfyOutputImage, bool) {
	for _, node := range entry.Outputs {
		if len(node.Gifs) > 0 {
			return node.Gifs[0], true
		}
		if len(node.Images) > 0 {
			return node.Images[0], true
		}
	}
	return comfyOutputImage{}, false
}

func (a *ComfyUIAdapter) viewURL(out comfyOutputImage) string {
	kind := out.Type
	if kind == "" {
		kind = "output"
	}
	q := url.Values{}
	q.Set("filename", out.Filename)
	q.Set("subfolder", out.Subfolder)
	q.Set("type", kind)
	return a.baseURL + "/view?" + q.Encode()
}

// HealthCheck reads server stats.
func (a *ComfyUIAdapter) HealthCheck(ctx context.Context) error {
	return probe(ctx, a.client, a.baseURL+"/system_stats")
}

func parseResolution(resolution string) (width, height int) {
	switch resolution {
	case "480p":
		return 854, 480
	case "720p":
		return 1280, 720
	case "1080p":
		return 1920, 1080
	}
	if w, h, ok := strings.Cut(resolution, "x"); ok {
		wi, err1 := strconv.Atoi(w)
		hi, err2 := strconv.Atoi(h)
		if err1 == nil && err2 == nil && wi > 0 && hi > 0 {
			return wi, hi
		}
	}
	return 1280, 720
}

// videoWorkflow builds an SVD image-to-video graph seeded from a blank frame.
func videoWorkflow(resolution string, duration, fps int, seed int64) map[string]comfyNode {
	width, height := parseResolution(resolution)
	frames := min(25, max(14, duration*fps/2))

	return map[string]comfyNode{
		"1": {ClassType: "ImageOnlyCheckpointLoader", Inputs: map[string]any{
			"ckpt_name": comfyCheckpoint,
		}},
		"2": {ClassType: "EmptyImage", Inputs: map[string]any{
			"width": width, "height": height, "batch_size": 1, "color": 0x808080,
		}},
		"3": {ClassType: "SVD_img2vid_Conditioning", Inputs: map[string]any{
			"clip_vision":        []any{"1", 1},
			"init_image":         []any{"2", 0},
			"vae":                []any{"1", 2},
			"width":              width,
			"height":             height,
			"video_frames":       frames,
			"motion_bucket_id":   127,
			"fps":                6,
			"augmentation_level": 0.0,
		}},
		"4": {ClassType: "KSampler", Inputs: map[string]any{
			"seed":         seed,
			"steps":        20,
			"cfg":          2.5,
			"sampler_name": "euler",
			"scheduler":    "karras",
			"denoise":      1.0,
			"model":        []any{"1", 0},
			"positive":     []any{"3", 0},
			"negative":     []any{"3", 1},
			"latent_image": []any{"3", 2},
		}},
		"5": {ClassType: "VAEDecode", Inputs: map[string]any{
			"samples": []any{"4", 0},
			"vae":     []any{"1", 2},
		}},
		"6": {ClassType: "SaveImage", Inputs: map[string]any{
			"images":          []any{"5", 0},
			"filename_prefix": "svd_video",
		}},
	}
}
