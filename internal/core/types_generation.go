package core

// RequestKind tags the variants of GenerationRequest and GenerationResult.
type RequestKind string

// Request kinds.
const (
	KindText  RequestKind = "text"
	KindImage RequestKind = "image"
	KindVideo RequestKind = "video"
)

// GenerationRequest is one of *TextRequest, *ImageRequest or *VideoRequest.
type GenerationRequest interface {
	Kind() RequestKind
	Target() string
	isGenerationRequest()
}

// GenerationResult is one of *TextResult, *ImageResult or *VideoResult.
type GenerationResult interface {
	Kind() RequestKind
	isGenerationResult()
}

// TextRequest asks a text model for a completion.
type TextRequest struct {
	ModelID      string   `json:"modelId"`
	Prompt       string   `json:"prompt"`
	SystemPrompt string   `json:"systemPrompt,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"maxTokens,omitempty"`
	Stream       bool     `json:"stream,omitempty"`
}

func (*TextRequest) Kind() RequestKind   { return KindText }
func (r *TextRequest) Target() string    { return r.ModelID }
func (*TextRequest) isGenerationRequest() {}

// ImageRequest asks an image model for one or more images.
type ImageRequest struct {
	ModelID        string   `json:"modelId"`
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negativePrompt,omitempty"`
	Width          *int     `json:"width,omitempty"`
	Height         *int     `json:"height,omitempty"`
	NumImages      *int     `json:"numImages,omitempty"`
	GuidanceScale  *float64 `json:"guidanceScale,omitempty"`
	Steps          *int     `json:"steps,omitempty"`
	Seed           *int64   `json:"seed,omitempty"`
	StylePreset    string   `json:"stylePreset,omitempty"`
}

func (*ImageRequest) Kind() RequestKind   { return KindImage }
func (r *ImageRequest) Target() string    { return r.ModelID }
func (*ImageRequest) isGenerationRequest() {}

// VideoRequest asks a video model for a clip.
type VideoRequest struct {
	ModelID    string `json:"modelId"`
	Prompt     string `json:"prompt"`
	InputImage string `json:"inputImage,omitempty"`
	Duration   *int   `json:"duration,omitempty"`
	FPS        *int   `json:"fps,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	Seed       *int64 `json:"seed,omitempty"`
}

func (*VideoRequest) Kind() RequestKind   { return KindVideo }
func (r *VideoRequest) Target() string    { return r.ModelID }
func (*VideoRequest) isGenerationRequest() {}

// Usage reports token accounting for a text completion.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// TextResult is a complete text completion.
type TextResult struct {
	Content      string `json:"content"`
	ModelID      string `json:"modelId"`
	Usage        *Usage `json:"usage,omitempty"`
	FinishReason string `json:"finishReason,omitempty"`
}

func (*TextResult) Kind() RequestKind  { return KindText }
func (*TextResult) isGenerationResult() {}

// ImageMetadata describes generated images.
type ImageMetadata struct {
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	Seed          *int64  `json:"seed,omitempty"`
	Steps         int     `json:"steps"`
	GuidanceScale float64 `json:"guidanceScale"`
}

// ImageResult holds image URLs or base64 payloads.
type ImageResult struct {
	Images   []string      `json:"images"`
	ModelID  string        `json:"modelId"`
	Metadata ImageMetadata `json:"metadata"`
}

func (*ImageResult) Kind() RequestKind  { return KindImage }
func (*ImageResult) isGenerationResult() {}

// VideoMetadata describes a generated clip.
type VideoMetadata struct {
	Duration   int    `json:"duration"`
	FPS        int    `json:"fps"`
	Resolution string `json:"resolution"`
	Seed       *int64 `json:"seed,omitempty"`
}

// VideoResult holds the location of a generated clip.
type VideoResult struct {
	VideoURL string        `json:"videoUrl"`
	ModelID  string        `json:"modelId"`
	Metadata VideoMetadata `json:"metadata"`
}

func (*VideoResult) Kind() RequestKind  { return KindVideo }
func (*VideoResult) isGenerationResult() {}

// StreamEventType identifies a StreamEvent variant.
type StreamEventType int

// Stream event types.
const (
	EventChunk StreamEventType = iota
	EventDone
	EventError
)

// StreamEvent is one element of a streamed generation.
// Done and Error are terminal; exactly one terminal event ends each stream.
type StreamEvent struct {
	Type StreamEventType
	Text string
	Err  *Error
}

// ChunkEvent wraps a piece of generated text.
func ChunkEvent(text string) StreamEvent {
	return StreamEvent{Type: EventChunk, Text: text}
}

// DoneEvent marks successful completion.
func DoneEvent() StreamEvent {
	return StreamEvent{Type: EventDone}
}

// ErrorEvent marks a failed stream.
func ErrorEvent(err error) StreamEvent {
	return StreamEvent{Type: EventError, Err: AsError(err)}
}

// Terminal reports whether no event may follow e.
func (e StreamEvent) Terminal() bool {
	return e.Type != EventChunk
}
