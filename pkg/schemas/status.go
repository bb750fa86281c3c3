package schemas

import "time"

// RenderState represents the current state of a render
type RenderState string

const (
	RenderStatePending   RenderState = "pending"
	RenderStateStaging   RenderState = "staging"
	RenderStateCompiling RenderState = "compiling"
	RenderStateRendering RenderState = "rendering"
	RenderStateUploading RenderState = "uploading"
	RenderStateCompleted RenderState = "completed"
	RenderStateFailed    RenderState = "failed"
)

// IsTerminal reports whether no further transitions follow s
func (s RenderState) IsTerminal() bool {
	return s == RenderStateCompleted || s == RenderStateFailed
}

// Progress represents engine progress for a render
type Progress struct {
	OverallPercent float64         `json:"overall_percent"`
	CurrentStep    string          `json:"current_step"`
	FFmpeg         *FFmpegProgress `json:"ffmpeg,omitempty"`
}

// FFmpegProgress is the last progress line reported by the engine
type FFmpegProgress struct {
	Frame       int     `json:"frame"`
	FPS         float64 `json:"fps"`
	CurrentTime string  `json:"current_time"`
	Speed       float64 `json:"speed"`
	Bitrate     float64 `json:"bitrate_kbps"`
	TotalSize   int64   `json:"total_size"`
}

// Error codes for ErrorInfo.Code
const (
	ErrorCodeInvalidComposition = "INVALID_COMPOSITION"
	ErrorCodeInputSave          = "INPUT_SAVE_FAILED"
	ErrorCodeCompile            = "COMPILE_FAILED"
	ErrorCodeEngine             = "ENGINE_FAILED"
	ErrorCodeUpload             = "UPLOAD_FAILED"
)

// ErrorInfo contains error details
type ErrorInfo struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	FFmpegStderr   string `json:"ffmpeg_stderr,omitempty"`
	FFmpegExitCode int    `json:"ffmpeg_exit_code,omitempty"`
}

// RenderStatus is the externally visible view of a render record
type RenderStatus struct {
	RenderID    string      `json:"render_id"`
	Status      RenderState `json:"status"`
	Clips       int         `json:"clips"`
	Images      int         `json:"images"`
	Texts       int         `json:"texts"`
	FilterGraph string      `json:"filter_graph,omitempty"`
	Progress    *Progress   `json:"progress,omitempty"`
	Error       *ErrorInfo  `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Output      string      `json:"output,omitempty"`
}
