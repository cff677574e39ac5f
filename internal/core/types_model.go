package core

import "time"

// ModelType is the capability class of a model.
type ModelType string

// Model types.
const (
	ModelTypeText       ModelType = "text"
	ModelTypeImage      ModelType = "image"
	ModelTypeVideo      ModelType = "video"
	ModelTypeMultimodal ModelType = "multimodal"
)

// Valid reports whether t is one of the known model types.
func (t ModelType) Valid() bool {
	switch t {
	case ModelTypeText, ModelTypeImage, ModelTypeVideo, ModelTypeMultimodal:
		return true
	}
	return false
}

// ModelConfig holds per-model defaults applied before dispatch.
type ModelConfig struct {
	MaxTokens           *int     `json:"maxTokens,omitempty"`
	Temperature         *float64 `json:"temperature,omitempty"`
	TopP                *float64 `json:"topP,omitempty"`
	DefaultSystemPrompt string   `json:"defaultSystemPrompt,omitempty"`
	NegativePrompt      string   `json:"negativePrompt,omitempty"`
	GuidanceScale       *float64 `json:"guidanceScale,omitempty"`
	Steps               *int     `json:"steps,omitempty"`
	Duration            *int     `json:"duration,omitempty"`
	FPS                 *int     `json:"fps,omitempty"`
	Resolution          string   `json:"resolution,omitempty"`
}

// Model is the routing metadata for one model. The authoritative copy
// lives in the external metadata store.
type Model struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	DisplayName string      `json:"displayName"`
	Description string      `json:"description,omitempty"`
	Provider    string      `json:"provider"`
	Type        ModelType   `json:"type"`
	Enabled     bool        `json:"enabled"`
	Config      ModelConfig `json:"config"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// BackendName returns the name the provider knows this model by.
func (m Model) BackendName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}

// Supports reports whether a request of the given kind may target m.
// Multimodal models accept text and image requests.
func (m Model) Supports(kind RequestKind) bool {
	switch m.Type {
	case ModelTypeText:
		return kind == KindText
	case ModelTypeImage:
		return kind == KindImage
	case ModelTypeVideo:
		return kind == KindVideo
	case ModelTypeMultimodal:
		return kind == KindText || kind == KindImage
	}
	return false
}

// ModelFilter narrows a model listing. Zero fields match everything.
type ModelFilter struct {
	Type     ModelType
	Provider string
	Enabled  *bool
}

// Match reports whether m passes the filter.
func (f ModelFilter) Match(m Model) bool {
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if f.Provider != "" && m.Provider != f.Provider {
		return false
	}
	if f.Enabled != nil && m.Enabled != *f.Enabled {
		return false
	}
	return true
}
