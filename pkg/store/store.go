// Package store keeps render records
package store

import (
	"context"
	"errors"
	"time"

	"github.com/chicogong/media-compositor/pkg/schemas"
)

var (
	// ErrRenderNotFound is returned when a render does not exist
	ErrRenderNotFound = errors.New("render not found")

	// ErrRenderExists is returned when creating a render whose ID is taken
	ErrRenderExists = errors.New("render already exists")

	// ErrInvalidRenderID is returned for empty render IDs
	ErrInvalidRenderID = errors.New("invalid render ID")
)

// Store persists render records
type Store interface {
	// CreateRender stores a new record
	CreateRender(ctx context.Context, r *Render) error

	// GetRender returns a copy of the record
	GetRender(ctx context.Context, id string) (*Render, error)

	// UpdateRender replaces an existing record
	UpdateRender(ctx context.Context, r *Render) error

	// DeleteRender removes a record
	DeleteRender(ctx context.Context, id string) error

	// ListRenders returns copies of the records matching filter
	ListRenders(ctx context.Context, filter *ListFilter) ([]*Render, error)

	// UpdateRenderState moves a render to state, optionally replacing its progress
	UpdateRenderState(ctx context.Context, id string, state schemas.RenderState, progress *schemas.Progress) error

	// UpdateRenderError records the failure of a render
	UpdateRenderError(ctx context.Context, id string, info *schemas.ErrorInfo) error

	// Close releases resources
	Close() error
}

// Render is the record of a single composition render
type Render struct {
	ID      string    `json:"render_id"`
	Created time.Time `json:"created_at"`
	Updated time.Time `json:"updated_at"`

	Clips  int `json:"clips"`
	Images int `json:"images"`
	Texts  int `json:"texts"`

	// FilterGraph is set once the composition compiled
	FilterGraph string `json:"filter_graph,omitempty"`

	// Output is the destination URI, if the render was uploaded
	Output string `json:"output,omitempty"`

	Status      schemas.RenderState `json:"status"`
	Progress    *schemas.Progress   `json:"progress,omitempty"`
	Error       *schemas.ErrorInfo  `json:"error,omitempty"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

// ListFilter selects and orders renders
type ListFilter struct {
	Status []schemas.RenderState `json:"status,omitempty"`

	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`

	Limit  int `json:"limit,omitempty"`  // 0 = no limit
	Offset int `json:"offset,omitempty"`

	SortBy    string `json:"sort_by,omitempty"`    // created, updated, status
	SortOrder string `json:"sort_order,omitempty"` // asc or desc
}

// ToStatus converts the record into its API representation
func (r *Render) ToStatus() *schemas.RenderStatus {
	return &schemas.RenderStatus{
		RenderID:    r.ID,
		Status:      r.Status,
		Clips:       r.Clips,
		Images:      r.Images,
		Texts:       r.Texts,
		FilterGraph: r.FilterGraph,
		Progress:    r.Progress,
		Error:       r.Error,
		CreatedAt:   r.Created,
		UpdatedAt:   r.Updated,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Output:      r.Output,
	}
}

// IsTerminal reports whether the render has finished
func (r *Render) IsTerminal() bool {
	return r.Status.IsTerminal()
}
