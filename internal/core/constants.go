package core

import "time"

// HTTP client config constants
const (
	HTTPMaxIdleConns          = 500
	HTTPMaxIdleConnsPerHost   = 100
	HTTPMaxConnsPerHost       = 200
	HTTPIdleConnTimeout       = 600 * time.Second
	HTTPTLSHandshakeTimeout   = 30 * time.Second
	HTTPResponseHeaderTimeout = 30 * time.Second
	HTTPExpectContinueTimeout = 5 * time.Second
)

// Cache config constants
const (
	CacheDefaultCapacity = 1000
	CacheCleanupInterval = 5 * time.Minute
	ModelCacheTTL        = 5 * time.Minute
	CacheKeyVersion      = "v1"
)

// DefaultModelFetchTimeout bounds one metadata store lookup.
const DefaultModelFetchTimeout = 10 * time.Second

// Provider invocation constants
const (
	DefaultProviderTimeout    = 60 * time.Second
	DefaultStreamIdleTimeout  = 60 * time.Second
	DefaultStreamMaxDuration  = 5 * time.Minute
	DefaultHealthProbeTimeout = 5 * time.Second
	StreamBufferSize          = 16
	BreakerFailureLimit       = 5
	BreakerOpenTimeout        = 30 * time.Second
	BreakerHalfOpenProbes     = 1
)

// Rate limit constants
const (
	RateLimitShards        = 32
	RateLimitSweepInterval = time.Minute
)

// Endpoint class constants. Each class owns an independent limiter.
const (
	ClassText       = "text"
	ClassImage      = "image"
	ClassVideo      = "video"
	ClassSeparation = "separation"
)

// Stats and monitoring constants
const (
	StatsFilePath        = "stats.json"
	MinSaveInterval      = 5 * time.Second
	HistoryBufferSize    = 1000
	HistoryBatchSize     = 100
	HistoryFlushInterval = 100 * time.Millisecond
)

// Text parameter bounds
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
	MinMaxTokens   = 1
	MaxMaxTokens   = 8192
)

// Image parameter bounds and defaults
const (
	MinNumImages         = 1
	MaxNumImages         = 4
	MinGuidanceScale     = 1.0
	MaxGuidanceScale     = 20.0
	MinSteps             = 1
	MaxSteps             = 100
	DefaultImageSize     = 512
	DefaultNumImages     = 1
	DefaultGuidanceScale = 7.5
	DefaultSteps         = 50
)

// Video parameter bounds and defaults
const (
	MinVideoDuration       = 1
	MaxVideoDuration       = 10
	MinVideoFPS            = 6
	MaxVideoFPS            = 30
	DefaultVideoDuration   = 5
	DefaultVideoFPS        = 24
	DefaultVideoResolution = "720p"
)

// ImageDimensions lists the accepted image widths and heights.
var ImageDimensions = []int{256, 512, 768, 1024}

// VideoResolutions lists the accepted video resolutions.
var VideoResolutions = []string{"720p", "1080p", "576x1024"}

// Image validation constants
const (
	MaxImageSizeBytes = 10 * 1024 * 1024
	ImageFormatPNG    = "image/png"
	ImageFormatJPEG   = "image/jpeg"
	ImageFormatGIF    = "image/gif"
	ImageFormatWebP   = "image/webp"
)

// SupportedImageFormats supported image format list
var SupportedImageFormats = []string{ImageFormatPNG, ImageFormatJPEG, ImageFormatGIF, ImageFormatWebP}

// Response body size limits
const (
	MaxResponseBodySize  = 64 * 1024 * 1024
	MaxScannerBufferSize = 1024 * 1024
	MaxUpstreamErrorBody = 4 * 1024
)

// Logging config constants
const (
	MaxDebugFilePathLength = 260
)

// File permission constants
const (
	FilePermissionReadWrite = 0644
)

// Time format constants
const (
	TimeFormatDateTime = "2006-01-02 15:04:05"
)
