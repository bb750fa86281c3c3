package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/chicogong/media-compositor/pkg/schemas"
)

// MemoryStore keeps renders in memory. When more than maxRecords renders are
// held, the oldest finished ones are evicted; in-flight renders never are.
type MemoryStore struct {
	mu         sync.RWMutex
	renders    map[string]*Render
	order      []string // creation order
	maxRecords int
}

// NewMemoryStore creates a store; maxRecords <= 0 means unbounded
func NewMemoryStore(maxRecords int) *MemoryStore {
	return &MemoryStore{
		renders:    make(map[string]*Render),
		maxRecords: maxRecords,
	}
}

func (m *MemoryStore) CreateRender(ctx context.Context, r *Render) error {
	if r == nil || r.ID == "" {
		return ErrInvalidRenderID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.renders[r.ID]; exists {
		return ErrRenderExists
	}

	m.renders[r.ID] = copyRender(r)
	m.order = append(m.order, r.ID)
	m.evict()
	return nil
}

func (m *MemoryStore) GetRender(ctx context.Context, id string) (*Render, error) {
	if id == "" {
		return nil, ErrInvalidRenderID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.renders[id]
	if !ok {
		return nil, ErrRenderNotFound
	}
	return copyRender(r), nil
}

func (m *MemoryStore) UpdateRender(ctx context.Context, r *Render) error {
	if r == nil || r.ID == "" {
		return ErrInvalidRenderID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.renders[r.ID]; !ok {
		return ErrRenderNotFound
	}

	stored := copyRender(r)
	stored.Updated = time.Now()
	m.renders[r.ID] = stored
	m.evict()
	return nil
}

func (m *MemoryStore) DeleteRender(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidRenderID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.renders[id]; !ok {
		return ErrRenderNotFound
	}
	m.remove(id)
	return nil
}

func (m *MemoryStore) ListRenders(ctx context.Context, filter *ListFilter) ([]*Render, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var renders []*Render
	for _, r := range m.renders {
		if matches(r, filter) {
			renders = append(renders, copyRender(r))
		}
	}

	sortRenders(renders, filter)
	return paginate(renders, filter), nil
}

func (m *MemoryStore) UpdateRenderState(ctx context.Context, id string, state schemas.RenderState, progress *schemas.Progress) error {
	if id == "" {
		return ErrInvalidRenderID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.renders[id]
	if !ok {
		return ErrRenderNotFound
	}

	now := time.Now()
	r.Status = state
	r.Updated = now
	if progress != nil {
		r.Progress = copyProgress(progress)
	}

	if state == schemas.RenderStateStaging && r.StartedAt == nil {
		r.StartedAt = &now
	}
	if state.IsTerminal() && r.CompletedAt == nil {
		r.CompletedAt = &now
		m.evict()
	}
	return nil
}

func (m *MemoryStore) UpdateRenderError(ctx context.Context, id string, info *schemas.ErrorInfo) error {
	if id == "" {
		return ErrInvalidRenderID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.renders[id]
	if !ok {
		return ErrRenderNotFound
	}

	if info != nil {
		e := *info
		r.Error = &e
	}
	r.Updated = time.Now()
	return nil
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}

// Len returns the number of records held
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.renders)
}

// evict drops the oldest finished renders while over capacity. Caller holds mu.
func (m *MemoryStore) evict() {
	if m.maxRecords <= 0 {
		return
	}
	for i := 0; len(m.renders) > m.maxRecords && i < len(m.order); {
		id := m.order[i]
		if m.renders[id].IsTerminal() {
			m.remove(id)
			continue
		}
		i++
	}
}

func (m *MemoryStore) remove(id string) {
	delete(m.renders, id)
	if i := slices.Index(m.order, id); i >= 0 {
		m.order = slices.Delete(m.order, i, i+1)
	}
}

func copyRender(r *Render) *Render {
	c := *r
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	if r.Progress != nil {
		c.Progress = copyProgress(r.Progress)
	}
	if r.Error != nil {
		e := *r.Error
		c.Error = &e
	}
	return &c
}

func copyProgress(p *schemas.Progress) *schemas.Progress {
	c := *p
	if p.FFmpeg != nil {
		f := *p.FFmpeg
		c.FFmpeg = &f
	}
	return &c
}

func matches(r *Render, filter *ListFilter) bool {
	if filter == nil {
		return true
	}
	if len(filter.Status) > 0 && !slices.Contains(filter.Status, r.Status) {
		return false
	}
	if filter.CreatedAfter != nil && r.Created.Before(*filter.CreatedAfter) {
		return false
	}
	if filter.CreatedBefore != nil && r.Created.After(*filter.CreatedBefore) {
		return false
	}
	return true
}

func sortRenders(renders []*Render, filter *ListFilter) {
	if filter == nil || filter.SortBy == "" {
		// newest first
		sort.Slice(renders, func(i, j int) bool {
			return renders[i].Created.After(renders[j].Created)
		})
		return
	}

	desc := filter.SortOrder == "desc"
	var less func(a, b *Render) bool
	switch filter.SortBy {
	case "created":
		less = func(a, b *Render) bool { return a.Created.Before(b.Created) }
	case "updated":
		less = func(a, b *Render) bool { return a.Updated.Before(b.Updated) }
	case "status":
		less = func(a, b *Render) bool { return a.Status < b.Status }
	default:
		return
	}

	sort.SliceStable(renders, func(i, j int) bool {
		if desc {
			return less(renders[j], renders[i])
		}
		return less(renders[i], renders[j])
	})
}

func paginate(renders []*Render, filter *ListFilter) []*Render {
	if filter == nil {
		return renders
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(renders) {
			return []*Render{}
		}
		renders = renders[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(renders) {
		renders = renders[:filter.Limit]
	}
	return renders
}
