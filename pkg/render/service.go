// Package render runs a composition end to end: stage media, validate,
// compile, build the invocation, run the engine and deliver the result. Each
// render is recorded in a store.Store as it moves through its states.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chicogong/media-compositor/pkg/compiler"
	"github.com/chicogong/media-compositor/pkg/compiler/validator"
	"github.com/chicogong/media-compositor/pkg/executor"
	"github.com/chicogong/media-compositor/pkg/prober"
	"github.com/chicogong/media-compositor/pkg/schemas"
	"github.com/chicogong/media-compositor/pkg/store"
)

// Opener returns the bytes of one uploaded file
type Opener func(ctx context.Context) (io.ReadCloser, error)

// Request is one render submission. Clips[i] is the upload for
// Composition.Videos[i] and Images[j] for Composition.Images[j]; entries past
// the uploads are fetched from their source URI.
type Request struct {
	Composition *schemas.CompositionRequest
	Clips       []Opener
	Images      []Opener
}

// Result is a finished render. Close releases its workspace.
type Result struct {
	ID string

	// Path is the rendered file; valid until Close
	Path string

	// Output is the URI the render was uploaded to, if any
	Output string

	Program *compiler.Program
	Command *executor.Command

	cleanup func()
}

// Close removes the render's workspace
func (r *Result) Close() {
	if r.cleanup != nil {
		r.cleanup()
		r.cleanup = nil
	}
}

// Service wires the render stages together
type Service struct {
	validator *validator.Validator
	compiler  *compiler.Compiler
	builder   *executor.CommandBuilder
	executor  *executor.Executor
	staging   *executor.StorageManager
	prober    *prober.Prober
	store     store.Store
	metrics   *Metrics
	logger    *zap.Logger
}

// Deps are the collaborators of a Service. Prober may be nil, in which case
// the first clip's duration must always be given.
type Deps struct {
	Validator *validator.Validator
	Compiler  *compiler.Compiler
	Builder   *executor.CommandBuilder
	Executor  *executor.Executor
	Staging   *executor.StorageManager
	Prober    *prober.Prober
	Store     store.Store
	Metrics   *Metrics
	Logger    *zap.Logger
}

// NewService creates a Service
func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		validator: d.Validator,
		compiler:  d.Compiler,
		builder:   d.Builder,
		executor:  d.Executor,
		staging:   d.Staging,
		prober:    d.Prober,
		store:     d.Store,
		metrics:   d.Metrics,
		logger:    logger,
	}
}

// Store returns the store renders are recorded in
func (s *Service) Store() store.Store {
	return s.store
}

// Render runs req to completion. The returned error is a validator.Errors for
// descriptor failures, wraps executor.ErrInputSave for staging failures and
// is an *executor.EngineError when the engine fails. On success the caller
// must Close the result.
func (s *Service) Render(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || req.Composition == nil {
		return nil, validator.Errors{{Field: "metadata", Message: "required"}}
	}

	id := uuid.NewString()
	comp := req.Composition
	logger := s.logger.With(zap.String("render_id", id))

	now := time.Now()
	rec := &store.Render{
		ID:      id,
		Created: now,
		Updated: now,
		Clips:   len(comp.Videos),
		Images:  len(comp.Images),
		Texts:   len(comp.Texts),
		Output:  comp.Output,
		Status:  schemas.RenderStatePending,
	}
	if err := s.store.CreateRender(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to record render: %w", err)
	}

	logger.Info("render started",
		zap.Int("clips", rec.Clips),
		zap.Int("images", rec.Images),
		zap.Int("texts", rec.Texts),
	)

	done := s.metrics.start()
	res, err := s.run(ctx, id, req, logger)
	if err != nil {
		info := s.fail(id, err, logger)
		done(info.Code)
		return nil, err
	}
	done("completed")

	s.advance(ctx, id, schemas.RenderStateCompleted, 100, "completed")
	logger.Info("render completed", zap.Duration("duration", time.Since(now)))
	return res, nil
}

func (s *Service) run(ctx context.Context, id string, req *Request, logger *zap.Logger) (*Result, error) {
	comp := withClips(req.Composition)

	if err := s.validator.ValidateSources(comp, len(req.Clips), len(req.Images)); err != nil {
		return nil, err
	}

	s.advance(ctx, id, schemas.RenderStateStaging, 5, "staging")
	ws, err := s.staging.NewWorkspace()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", executor.ErrInputSave, err)
	}
	res := &Result{ID: id, cleanup: func() { s.staging.Cleanup(ws) }}

	ok := false
	defer func() {
		if !ok {
			res.Close()
		}
	}()

	staged, err := s.staging.StageInputs(ctx, ws, s.sources(comp, req))
	if err != nil {
		return nil, err
	}

	if len(comp.Videos) > 0 && comp.Videos[0].Duration == nil && s.prober != nil {
		d, err := s.prober.Duration(ctx, staged.Clips[0])
		if err != nil {
			logger.Warn("could not probe first clip duration", zap.Error(err))
		} else {
			sec := schemas.Seconds(d.Seconds())
			comp.Videos[0].Duration = &sec
		}
	}

	s.advance(ctx, id, schemas.RenderStateCompiling, 15, "compiling")
	typed, err := s.validator.Validate(comp)
	if err != nil {
		return nil, err
	}

	prog, err := s.compiler.Compile(typed)
	if err != nil {
		return nil, fmt.Errorf("compile failed: %w", err)
	}
	res.Program = prog
	s.recordGraph(ctx, id, prog.Graph.String())

	cmd, err := s.builder.Build(prog, staged.Clips, staged.Images, ws.OutputPath())
	if err != nil {
		return nil, fmt.Errorf("compile failed: %w", err)
	}
	res.Command = cmd
	logger.Debug("invocation built", zap.Strings("args", cmd.Args))

	s.advance(ctx, id, schemas.RenderStateRendering, 20, "rendering")
	err = s.executor.Run(ctx, cmd, &executor.RunOptions{
		OnProgress: func(p *executor.Progress, percent float64) {
			s.store.UpdateRenderState(ctx, id, schemas.RenderStateRendering, &schemas.Progress{
				OverallPercent: 20 + percent*0.75,
				CurrentStep:    "rendering",
				FFmpeg:         p.Schema(),
			})
		},
		OnLog: func(line string) {
			logger.Debug("ffmpeg", zap.String("line", line))
		},
	})
	if err != nil {
		return nil, err
	}
	res.Path = cmd.Output

	if comp.Output != "" {
		s.advance(ctx, id, schemas.RenderStateUploading, 95, "uploading")
		if err := s.staging.UploadOutput(ctx, res.Path, comp.Output); err != nil {
			return nil, &UploadError{URI: comp.Output, Err: err}
		}
		res.Output = comp.Output
	}

	ok = true
	return res, nil
}

// sources pairs every clip and image with its upload or its source URI
func (s *Service) sources(comp *schemas.CompositionRequest, req *Request) []executor.MediaSource {
	srcs := make([]executor.MediaSource, 0, len(comp.Videos)+len(comp.Images))
	for i, clip := range comp.Videos {
		src := executor.MediaSource{Kind: executor.MediaClip, Index: i}
		if i < len(req.Clips) {
			src.Open = req.Clips[i]
		} else {
			src.Open = s.staging.FromURI(clip.Source)
		}
		srcs = append(srcs, src)
	}
	for j, img := range comp.Images {
		src := executor.MediaSource{Kind: executor.MediaImage, Index: j}
		if j < len(req.Images) {
			src.Open = req.Images[j]
		} else {
			src.Open = s.staging.FromURI(img.Source)
		}
		srcs = append(srcs, src)
	}
	return srcs
}

// withClips returns a shallow copy of req whose Videos can be modified
func withClips(req *schemas.CompositionRequest) *schemas.CompositionRequest {
	c := *req
	c.Videos = append([]schemas.ClipSpec(nil), req.Videos...)
	return &c
}

func (s *Service) advance(ctx context.Context, id string, state schemas.RenderState, percent float64, step string) {
	err := s.store.UpdateRenderState(ctx, id, state, &schemas.Progress{
		OverallPercent: percent,
		CurrentStep:    step,
	})
	if err != nil {
		s.logger.Warn("failed to update render state",
			zap.String("render_id", id),
			zap.String("state", string(state)),
			zap.Error(err),
		)
	}
}

func (s *Service) recordGraph(ctx context.Context, id, graph string) {
	rec, err := s.store.GetRender(ctx, id)
	if err != nil {
		return
	}
	rec.FilterGraph = graph
	if err := s.store.UpdateRender(ctx, rec); err != nil {
		s.logger.Warn("failed to record filter graph", zap.String("render_id", id), zap.Error(err))
	}
}

// fail records err on the render. It uses a fresh context so a cancelled
// request still leaves a failed record behind.
func (s *Service) fail(id string, err error, logger *zap.Logger) *schemas.ErrorInfo {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	info := ErrorInfo(err)
	logger.Warn("render failed", zap.String("code", info.Code), zap.Error(err))

	if uerr := s.store.UpdateRenderError(ctx, id, info); uerr != nil {
		logger.Warn("failed to record render error", zap.Error(uerr))
	}
	s.advance(ctx, id, schemas.RenderStateFailed, 0, "failed")
	return info
}

// UploadError is returned when the render succeeded but could not be
// delivered to the requested output URI
type UploadError struct {
	URI string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload to %s failed: %v", e.URI, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// ErrorInfo classifies err for the render record
func ErrorInfo(err error) *schemas.ErrorInfo {
	info := &schemas.ErrorInfo{Code: schemas.ErrorCodeCompile, Message: err.Error()}

	var verrs validator.Errors
	var engineErr *executor.EngineError
	var uploadErr *UploadError
	switch {
	case errors.As(err, &verrs):
		info.Code = schemas.ErrorCodeInvalidComposition
	case errors.Is(err, executor.ErrInputSave):
		info.Code = schemas.ErrorCodeInputSave
	case errors.As(err, &engineErr):
		info.Code = schemas.ErrorCodeEngine
		info.Message = "ffmpeg failed"
		if engineErr.Err != nil {
			info.Message += ": " + engineErr.Err.Error()
		}
		info.FFmpegStderr = engineErr.Stderr
		info.FFmpegExitCode = engineErr.ExitCode
	case errors.As(err, &uploadErr):
		info.Code = schemas.ErrorCodeUpload
	}
	return info
}
