package executor

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/chicogong/media-compositor/pkg/storage"
)

// ErrInputSave marks failures to persist a request's media before rendering
var ErrInputSave = errors.New("failed to save input")

// OutputName is the rendered file's name inside a workspace
const OutputName = "output.mp4"

// MediaKind distinguishes clip and image inputs
type MediaKind string

const (
	MediaClip  MediaKind = "video"
	MediaImage MediaKind = "image"
)

// MediaSource is one input to stage. Open is called once, from its own
// goroutine.
type MediaSource struct {
	Kind  MediaKind
	Index int
	Open  func(ctx context.Context) (io.ReadCloser, error)
}

// Workspace is the private directory of a single render
type Workspace struct {
	ID  string
	Dir string
}

// OutputPath is where the engine writes the render
func (w *Workspace) OutputPath() string {
	return filepath.Join(w.Dir, OutputName)
}

// StagedMedia lists staged files in binding order
type StagedMedia struct {
	Clips  []string
	Images []string
}

// StorageManager stages request media into per-render workspaces and delivers
// rendered files to their destination.
type StorageManager struct {
	root   string
	keep   bool
	router *storage.Router
	logger *zap.Logger
}

// NewStorageManager creates a manager rooted at root (os.TempDir() when
// empty). With keep set, workspaces survive Cleanup for inspection.
func NewStorageManager(root string, router *storage.Router, logger *zap.Logger, keep bool) *StorageManager {
	if root == "" {
		root = os.TempDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StorageManager{
		root:   root,
		keep:   keep,
		router: router,
		logger: logger,
	}
}

// NewWorkspace creates a fresh, uniquely named workspace
func (sm *StorageManager) NewWorkspace() (*Workspace, error) {
	if err := os.MkdirAll(sm.root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging root: %w", err)
	}

	id := uuid.NewString()
	dir := filepath.Join(sm.root, id)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Workspace{ID: id, Dir: dir}, nil
}

// FromURI returns an opener that reads uri through the registered backends
func (sm *StorageManager) FromURI(uri string) func(context.Context) (io.ReadCloser, error) {
	return func(ctx context.Context) (io.ReadCloser, error) {
		if sm.router == nil {
			return nil, fmt.Errorf("no storage backends configured")
		}
		return sm.router.Open(ctx, uri)
	}
}

// StageInputs writes every source into ws concurrently: clip i becomes
// video_i.mp4 and image j becomes image_j.png. Images must decode as an image.
// The first failure cancels the remaining copies; it wraps ErrInputSave.
func (sm *StorageManager) StageInputs(ctx context.Context, ws *Workspace, sources []MediaSource) (*StagedMedia, error) {
	staged := &StagedMedia{}
	for _, src := range sources {
		switch src.Kind {
		case MediaClip:
			staged.Clips = append(staged.Clips, "")
		case MediaImage:
			staged.Images = append(staged.Images, "")
		default:
			return nil, fmt.Errorf("%w: unknown media kind %q", ErrInputSave, src.Kind)
		}
	}

	paths := make([]string, len(sources))
	for i, src := range sources {
		var slot *string
		var name string
		switch src.Kind {
		case MediaClip:
			if src.Index < 0 || src.Index >= len(staged.Clips) {
				return nil, fmt.Errorf("%w: clip index %d out of range", ErrInputSave, src.Index)
			}
			slot, name = &staged.Clips[src.Index], fmt.Sprintf("video_%d.mp4", src.Index)
		case MediaImage:
			if src.Index < 0 || src.Index >= len(staged.Images) {
				return nil, fmt.Errorf("%w: image index %d out of range", ErrInputSave, src.Index)
			}
			slot, name = &staged.Images[src.Index], fmt.Sprintf("image_%d.png", src.Index)
		}
		if *slot != "" {
			return nil, fmt.Errorf("%w: %s %d staged twice", ErrInputSave, src.Kind, src.Index)
		}
		*slot = filepath.Join(ws.Dir, name)
		paths[i] = *slot
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			if err := sm.stage(gctx, src, paths[i]); err != nil {
				return fmt.Errorf("%w: %s %d: %v", ErrInputSave, src.Kind, src.Index, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sm.logger.Debug("inputs staged",
		zap.String("render_id", ws.ID),
		zap.Int("clips", len(staged.Clips)),
		zap.Int("images", len(staged.Images)),
	)
	return staged, nil
}

func (sm *StorageManager) stage(ctx context.Context, src MediaSource, path string) error {
	if src.Open == nil {
		return fmt.Errorf("no data")
	}

	rc, err := src.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}

	n, err := io.Copy(f, contextReader{ctx: ctx, r: rc})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("file is empty")
	}

	if src.Kind == MediaImage {
		return sniffImage(path)
	}
	return nil
}

// sniffImage rejects files no registered image decoder recognises
func sniffImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, _, err := image.DecodeConfig(f); err != nil {
		return fmt.Errorf("not a supported image: %w", err)
	}
	return nil
}

// UploadOutput copies the rendered file to destURI
func (sm *StorageManager) UploadOutput(ctx context.Context, localPath, destURI string) error {
	if sm.router == nil {
		return fmt.Errorf("no storage backends configured")
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open render: %w", err)
	}
	defer f.Close()

	if err := sm.router.Save(ctx, destURI, f, "video/mp4"); err != nil {
		return fmt.Errorf("failed to upload to %s: %w", destURI, err)
	}
	return nil
}

// Cleanup removes ws unless workspaces are kept. Errors are logged only.
func (sm *StorageManager) Cleanup(ws *Workspace) {
	if ws == nil {
		return
	}
	if sm.keep {
		sm.logger.Info("keeping workspace", zap.String("render_id", ws.ID), zap.String("dir", ws.Dir))
		return
	}

	// never remove anything outside the staging root
	rel, err := filepath.Rel(sm.root, ws.Dir)
	if err != nil || rel == "." || filepath.IsAbs(rel) || rel == ".." || filepath.Dir(rel) != "." {
		sm.logger.Error("refusing to remove workspace", zap.String("dir", ws.Dir))
		return
	}

	if err := os.RemoveAll(ws.Dir); err != nil {
		sm.logger.Warn("failed to remove workspace", zap.String("render_id", ws.ID), zap.Error(err))
	}
}

// contextReader stops a copy once ctx is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
