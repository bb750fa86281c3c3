// Package api provides the HTTP handlers for the compositor
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/chicogong/media-compositor/pkg/compiler/validator"
	"github.com/chicogong/media-compositor/pkg/render"
	"github.com/chicogong/media-compositor/pkg/schemas"
	"github.com/chicogong/media-compositor/pkg/store"
)

// DownloadName is the attachment name of a rendered video
const DownloadName = "final_video.mp4"

// multipart parts above this size are spooled to disk by the mime package
const maxMemory = 32 << 20

// Server holds the API server dependencies
type Server struct {
	renderer  *render.Service
	store     store.Store
	logger    *zap.Logger
	maxUpload int64
	started   time.Time
}

// NewServer creates a new API server. maxUpload bounds a whole multipart
// request body; zero means unlimited.
func NewServer(renderer *render.Service, logger *zap.Logger, maxUpload int64) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		renderer:  renderer,
		store:     renderer.Store(),
		logger:    logger,
		maxUpload: maxUpload,
		started:   time.Now(),
	}
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`

	// Fields lists descriptor violations
	Fields []validator.FieldError `json:"fields,omitempty"`

	RenderID       string `json:"render_id,omitempty"`
	FFmpegStderr   string `json:"ffmpeg_stderr,omitempty"`
	FFmpegExitCode int    `json:"ffmpeg_exit_code,omitempty"`
}

// HandleProcess handles POST /process and POST /api/v1/renders.
//
// The request is a multipart form with a "metadata" JSON composition,
// optional "canvas_width"/"canvas_height" and repeated "videos" and "images"
// files bound to the composition's entries by position. The rendered video is
// returned as an attachment.
func (s *Server) HandleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendError(w, http.StatusRequestEntityTooLarge, "request_too_large",
				fmt.Sprintf("Request exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.sendError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("Invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	comp, err := parseComposition(r.MultipartForm)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := s.renderer.Render(r.Context(), &render.Request{
		Composition: comp,
		Clips:       openers(r.MultipartForm.File["videos"]),
		Images:      openers(r.MultipartForm.File["images"]),
	})
	if err != nil {
		s.sendRenderError(w, err)
		return
	}
	defer res.Close()

	f, err := os.Open(res.Path)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "render_failed", fmt.Sprintf("Failed to open render: %v", err))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "render_failed", fmt.Sprintf("Failed to open render: %v", err))
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", DownloadName))
	w.Header().Set("X-Render-ID", res.ID)
	http.ServeContent(w, r, DownloadName, info.ModTime(), f)
}

// parseComposition decodes the metadata part and applies the canvas fields
func parseComposition(form *multipart.Form) (*schemas.CompositionRequest, error) {
	raw := first(form.Value["metadata"])
	if raw == "" {
		return nil, fmt.Errorf("metadata is required")
	}

	var comp schemas.CompositionRequest
	if err := json.Unmarshal([]byte(raw), &comp); err != nil {
		return nil, fmt.Errorf("invalid metadata: %v", err)
	}

	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"canvas_width", &comp.CanvasWidth},
		{"canvas_height", &comp.CanvasHeight},
	} {
		v := strings.TrimSpace(first(form.Value[f.name]))
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %q", f.name, v)
		}
		*f.dst = n
	}

	return &comp, nil
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func openers(files []*multipart.FileHeader) []render.Opener {
	out := make([]render.Opener, len(files))
	for i, fh := range files {
		out[i] = func(ctx context.Context) (io.ReadCloser, error) {
			return fh.Open()
		}
	}
	return out
}

// sendRenderError maps a render failure onto a status code
func (s *Server) sendRenderError(w http.ResponseWriter, err error) {
	info := render.ErrorInfo(err)
	resp := ErrorResponse{Message: info.Message}

	var verrs validator.Errors
	switch info.Code {
	case schemas.ErrorCodeInvalidComposition:
		resp.Code, resp.Error = http.StatusBadRequest, "invalid_composition"
		if errors.As(err, &verrs) {
			resp.Fields = verrs
		}
	case schemas.ErrorCodeInputSave:
		resp.Code, resp.Error = http.StatusUnprocessableEntity, "input_save_failed"
	case schemas.ErrorCodeEngine:
		resp.Code, resp.Error = http.StatusInternalServerError, "engine_failed"
		resp.FFmpegStderr = info.FFmpegStderr
		resp.FFmpegExitCode = info.FFmpegExitCode
	case schemas.ErrorCodeUpload:
		resp.Code, resp.Error = http.StatusBadGateway, "upload_failed"
	default:
		resp.Code, resp.Error = http.StatusInternalServerError, "render_failed"
	}

	if resp.Code >= http.StatusInternalServerError {
		s.logger.Error("render request failed", zap.String("code", info.Code), zap.Error(err))
	}
	s.sendJSON(w, resp.Code, resp)
}

// HandleGetRender handles GET /api/v1/renders/{id}
func (s *Server) HandleGetRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	renderID := extractRenderID(r.URL.Path)
	if renderID == "" {
		s.sendError(w, http.StatusBadRequest, "invalid_render_id", "Render ID is required")
		return
	}

	rec, err := s.store.GetRender(r.Context(), renderID)
	if errors.Is(err, store.ErrRenderNotFound) {
		s.sendError(w, http.StatusNotFound, "render_not_found", fmt.Sprintf("Render %s not found", renderID))
		return
	}
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "store_error", fmt.Sprintf("Failed to get render: %v", err))
		return
	}

	s.sendJSON(w, http.StatusOK, rec.ToStatus())
}

// HandleListRenders handles GET /api/v1/renders
func (s *Server) HandleListRenders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	filter, err := parseListFilter(r)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid_filter", err.Error())
		return
	}

	renders, err := s.store.ListRenders(r.Context(), filter)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "store_error", fmt.Sprintf("Failed to list renders: %v", err))
		return
	}

	statuses := make([]*schemas.RenderStatus, len(renders))
	for i, rec := range renders {
		statuses[i] = rec.ToStatus()
	}
	s.sendJSON(w, http.StatusOK, statuses)
}

// HandleDeleteRender handles DELETE /api/v1/renders/{id}. Only finished
// renders can be deleted.
func (s *Server) HandleDeleteRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		s.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	renderID := extractRenderID(r.URL.Path)
	if renderID == "" {
		s.sendError(w, http.StatusBadRequest, "invalid_render_id", "Render ID is required")
		return
	}

	ctx := r.Context()
	rec, err := s.store.GetRender(ctx, renderID)
	if errors.Is(err, store.ErrRenderNotFound) {
		s.sendError(w, http.StatusNotFound, "render_not_found", fmt.Sprintf("Render %s not found", renderID))
		return
	}
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "store_error", fmt.Sprintf("Failed to get render: %v", err))
		return
	}

	if !rec.IsTerminal() {
		s.sendError(w, http.StatusConflict, "render_in_progress", "Render is still in progress")
		return
	}

	if err := s.store.DeleteRender(ctx, renderID); err != nil {
		s.sendError(w, http.StatusInternalServerError, "store_error", fmt.Sprintf("Failed to delete render: %v", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleHealth handles GET /health
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	health := map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}

	if vm, err := mem.VirtualMemoryWithContext(r.Context()); err == nil {
		health["memory"] = map[string]interface{}{
			"total_bytes":     vm.Total,
			"available_bytes": vm.Available,
			"used_percent":    vm.UsedPercent,
		}
	} else {
		s.logger.Debug("memory stats unavailable", zap.Error(err))
	}

	s.sendJSON(w, http.StatusOK, health)
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) sendError(w http.ResponseWriter, status int, code, message string) {
	s.sendJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
		Code:    status,
	})
}

func parseListFilter(r *http.Request) (*store.ListFilter, error) {
	q := r.URL.Query()
	filter := &store.ListFilter{
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
	}

	for _, status := range q["status"] {
		filter.Status = append(filter.Status, schemas.RenderState(status))
	}

	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"limit", &filter.Limit},
		{"offset", &filter.Offset},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid %s: %q", p.name, v)
		}
		*p.dst = n
	}

	return filter, nil
}

// extractRenderID extracts the render ID from a path like "/api/v1/renders/{id}"
func extractRenderID(path string) string {
	id, ok := strings.CutPrefix(path, "/api/v1/renders/")
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}

// Close closes the server and releases resources
func (s *Server) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}
