package validate

import (
	"slices"
	"strings"

	"genrouter/internal/core"
)

var imageValidator = NewImageValidator()

var errMissingRequest = core.NewValidationError("request is required")

// Request trims the prompt and model id of req in place and checks every
// parameter against its documented bounds. It never touches quota.
func Request(req core.GenerationRequest) error {
	switch r := req.(type) {
	case *core.TextRequest:
		return Text(r)
	case *core.ImageRequest:
		return Image(r)
	case *core.VideoRequest:
		return Video(r)
	}
	return errMissingRequest
}

func common(prompt, modelID *string) error {
	*prompt = strings.TrimSpace(*prompt)
	*modelID = strings.TrimSpace(*modelID)
	if *prompt == "" {
		return core.NewValidationError("Prompt must be a non-empty string")
	}
	if *modelID == "" {
		return core.NewValidationError("Model ID must be a non-empty string")
	}
	return nil
}

// Text validates a text request.
func Text(r *core.TextRequest) error {
	if r == nil {
		return errMissingRequest
	}
	if err := common(&r.Prompt, &r.ModelID); err != nil {
		return err
	}
	r.SystemPrompt = strings.TrimSpace(r.SystemPrompt)
	if t := r.Temperature; t != nil && (*t < core.MinTemperature || *t > core.MaxTemperature) {
		return core.NewValidationError("Temperature must be a number between %g and %g", core.MinTemperature, core.MaxTemperature)
	}
	if n := r.MaxTokens; n != nil && (*n < core.MinMaxTokens || *n > core.MaxMaxTokens) {
		return core.NewValidationError("Max tokens must be a number between %d and %d", core.MinMaxTokens, core.MaxMaxTokens)
	}
	return nil
}

// Image validates an image request.
func Image(r *core.ImageRequest) error {
	if r == nil {
		return errMissingRequest
	}
	if err := common(&r.Prompt, &r.ModelID); err != nil {
		return err
	}
	r.NegativePrompt = strings.TrimSpace(r.NegativePrompt)
	if w := r.Width; w != nil && !slices.Contains(core.ImageDimensions, *w) {
		return core.NewValidationError("Width must be one of: %v", core.ImageDimensions)
	}
	if h := r.Height; h != nil && !slices.Contains(core.ImageDimensions, *h) {
		return core.NewValidationError("Height must be one of: %v", core.ImageDimensions)
	}
	if n := r.NumImages; n != nil && (*n < core.MinNumImages || *n > core.MaxNumImages) {
		return core.NewValidationError("Number of images must be between %d and %d", core.MinNumImages, core.MaxNumImages)
	}
	if g := r.GuidanceScale; g != nil && (*g < core.MinGuidanceScale || *g > core.MaxGuidanceScale) {
		return core.NewValidationError("Guidance scale must be between %g and %g", core.MinGuidanceScale, core.MaxGuidanceScale)
	}
	if s := r.Steps; s != nil && (*s < core.MinSteps || *s > core.MaxSteps) {
		return core.NewValidationError("Steps must be between %d and %d", core.MinSteps, core.MaxSteps)
	}
	return nil
}

// Video validates a video request.
func Video(r *core.VideoRequest) error {
	if r == nil {
		return errMissingRequest
	}
	if err := common(&r.Prompt, &r.ModelID); err != nil {
		return err
	}
	r.InputImage = strings.TrimSpace(r.InputImage)
	if d := r.Duration; d != nil && (*d < core.MinVideoDuration || *d > core.MaxVideoDuration) {
		return core.NewValidationError("Duration must be between %d and %d seconds", core.MinVideoDuration, core.MaxVideoDuration)
	}
	if f := r.FPS; f != nil && (*f < core.MinVideoFPS || *f > core.MaxVideoFPS) {
		return core.NewValidationError("FPS must be between %d and %d", core.MinVideoFPS, core.MaxVideoFPS)
	}
	if r.Resolution != "" && !slices.Contains(core.VideoResolutions, r.Resolution) {
		return core.NewValidationError("Resolution must be one of: %s", strings.Join(core.VideoResolutions, ", "))
	}
	if r.InputImage != "" {
		if err := imageValidator.ValidateImageRef(r.InputImage); err != nil {
			return core.NewValidationError("Invalid input image: %v", err)
		}
	}
	return nil
}

// ImageWithin checks r against provider-declared bounds. Zero bounds are
// unlimited. Call it after Image and ApplyImageDefaults.
func ImageWithin(r *core.ImageRequest, b core.ImageBounds) error {
	if b.MaxWidth > 0 && r.Width != nil && *r.Width > b.MaxWidth {
		return core.NewValidationError("Width exceeds provider maximum of %d", b.MaxWidth)
	}
	if b.MaxHeight > 0 && r.Height != nil && *r.Height > b.MaxHeight {
		return core.NewValidationError("Height exceeds provider maximum of %d", b.MaxHeight)
	}
	if b.MaxNumImages > 0 && r.NumImages != nil && *r.NumImages > b.MaxNumImages {
		return core.NewValidationError("Number of images exceeds provider maximum of %d", b.MaxNumImages)
	}
	return nil
}

// ApplyImageDefaults fills unset image parameters.
func ApplyImageDefaults(r *core.ImageRequest) {
	setDefault(&r.Width, core.DefaultImageSize)
	setDefault(&r.Height, core.DefaultImageSize)
	setDefault(&r.NumImages, core.DefaultNumImages)
	setDefault(&r.GuidanceScale, core.DefaultGuidanceScale)
	setDefault(&r.Steps, core.DefaultSteps)
}

// ApplyVideoDefaults fills unset video parameters.
func ApplyVideoDefaults(r *core.VideoRequest) {
	setDefault(&r.Duration, core.DefaultVideoDuration)
	setDefault(&r.FPS, core.DefaultVideoFPS)
	if r.Resolution == "" {
		r.Resolution = core.DefaultVideoResolution
	}
}

func setDefault[T any](p **T, v T) {
	if *p == nil {
		*p = &v
	}
}
