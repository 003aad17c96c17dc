package repository

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/scoutsense/entitycache/pkg/cache"
	"github.com/scoutsense/entitycache/pkg/httpcache"
	"github.com/scoutsense/entitycache/pkg/normalize"
	"github.com/scoutsense/entitycache/pkg/schema"
)

// apiVersionPrefix is prepended to table names to build default resource paths
const apiVersionPrefix = "/1/"

// Option configures a GenericRepository
type Option func(*options)

type options struct {
	basePath  string
	listField string
}

// WithBasePath overrides the resource path, "/1/<table>" by default
func WithBasePath(path string) Option {
	return func(o *options) { o.basePath = strings.TrimRight(path, "/") }
}

// WithListField reads list responses from a field of an envelope object
// ({"results": [...]}) instead of a bare array
func WithListField(field string) Option {
	return func(o *options) { o.listField = field }
}

// GenericRepository decodes cached entities of one type into T
type GenericRepository[T any] struct {
	cache      *cache.Cache
	entityType schema.EntityType
	idField    string
	opts       options
}

// New creates a repository for entities of type t
func New[T any](c *cache.Cache, t schema.EntityType, opts ...Option) *GenericRepository[T] {
	reg := c.Registry()
	o := options{basePath: apiVersionPrefix + reg.Table(t)}
	for _, opt := range opts {
		opt(&o)
	}
	return &GenericRepository[T]{
		cache:      c,
		entityType: t,
		idField:    reg.IDField(t),
		opts:       o,
	}
}

// NewFor creates a repository for a model that reports its own entity type
func NewFor[T Typed](c *cache.Cache, opts ...Option) *GenericRepository[T] {
	var zero T
	return New[T](c, zero.EntityType(), opts...)
}

var _ Repository[struct{}] = (*GenericRepository[struct{}])(nil)

// EntityType returns the entity type the repository reads
func (r *GenericRepository[T]) EntityType() schema.EntityType {
	return r.entityType
}

// BasePath returns the resource path
func (r *GenericRepository[T]) BasePath() string {
	return r.opts.basePath
}

// ============================================================================
// LOCAL READS
// ============================================================================

// FindByID returns the stored entity, or nil when it is not stored
func (r *GenericRepository[T]) FindByID(id string) (*T, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	e := r.cache.Get(r.entityType, id)
	if e == nil {
		return nil, nil
	}
	return decode[T](e)
}

// FindAll returns every stored entity ordered by id
func (r *GenericRepository[T]) FindAll() ([]T, error) {
	return r.FindWhere(nil)
}

// FindWhere returns the stored entities accepted by match; nil matches all
func (r *GenericRepository[T]) FindWhere(match func(normalize.Entity) bool) ([]T, error) {
	all := r.cache.GetAll(r.entityType)
	out := make([]T, 0, len(all))
	for _, e := range all {
		if match != nil && !match(e) {
			continue
		}
		v, err := decode[T](e)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

// First returns the first stored entity accepted by match, or nil
func (r *GenericRepository[T]) First(match func(normalize.Entity) bool) (*T, error) {
	for _, e := range r.cache.GetAll(r.entityType) {
		if match == nil || match(e) {
			return decode[T](e)
		}
	}
	return nil, nil
}

// Count returns the number of stored entities
func (r *GenericRepository[T]) Count() int {
	return r.cache.Store().Snapshot().Len(r.entityType)
}

// Exists reports whether id is stored
func (r *GenericRepository[T]) Exists(id string) bool {
	return r.cache.Store().Snapshot().Has(r.entityType, id)
}

// ============================================================================
// REMOTE READS
// ============================================================================

// Fetch loads one entity through the request cache and returns the stored copy
func (r *GenericRepository[T]) Fetch(ctx context.Context, id string, force bool) (*T, *httpcache.Response, error) {
	if id == "" {
		return nil, nil, ErrInvalidID
	}
	resp, err := r.cache.FetchData(ctx, r.entityType, cache.FetchOptions{
		URL:   r.itemPath(id),
		Force: force,
	})
	if err != nil {
		return nil, resp, err
	}
	if err := statusError(resp); err != nil {
		return nil, resp, err
	}

	v, err := r.FindByID(id)
	return v, resp, err
}

// FetchList loads a list through the request cache. Items are returned in
// response order, read back from the store so relations are resolved.
func (r *GenericRepository[T]) FetchList(ctx context.Context, q *Query, force bool) ([]T, *httpcache.Response, error) {
	if q == nil {
		q = NewQuery(r.opts.basePath)
	}
	var merge func(any) any
	if r.opts.listField != "" {
		field := r.opts.listField
		merge = func(data any) any {
			if m, ok := data.(map[string]any); ok {
				return m[field]
			}
			return data
		}
	}

	resp, err := r.cache.FetchData(ctx, r.entityType, cache.FetchOptions{
		URL:   q.Build(),
		Merge: merge,
		Force: force,
	})
	if err != nil {
		return nil, resp, err
	}
	if err := statusError(resp); err != nil {
		return nil, resp, err
	}

	ids, err := r.listIDs(resp)
	if err != nil {
		return nil, resp, err
	}
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		v, err := r.FindByID(id)
		if err != nil {
			return nil, resp, err
		}
		// removed locally since the response was cached
		if v == nil {
			continue
		}
		out = append(out, *v)
	}
	return out, resp, nil
}

func (r *GenericRepository[T]) listIDs(resp *httpcache.Response) ([]string, error) {
	if resp.Empty() {
		return nil, nil
	}
	var body any
	if err := resp.JSON(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	if r.opts.listField != "" {
		if m, ok := body.(map[string]any); ok {
			body = m[r.opts.listField]
		}
	}

	items, ok := body.([]any)
	if !ok {
		items = []any{body}
	}
	ids := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, ok := normalize.EntityID(m, r.idField)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// ============================================================================
// COMMANDS
// ============================================================================

// Create POSTs v to the resource path
func (r *GenericRepository[T]) Create(ctx context.Context, v any) (*T, error) {
	e, _, err := r.cache.Create(ctx, r.entityType, cache.MutateOptions{
		URL:  r.opts.basePath,
		Data: v,
	})
	if err != nil {
		return nil, err
	}
	return decodeOrNil[T](e)
}

// Update PUTs v to the item path of id
func (r *GenericRepository[T]) Update(ctx context.Context, id string, v any) (*T, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	e, _, err := r.cache.Update(ctx, r.entityType, cache.MutateOptions{
		URL:  r.itemPath(id),
		Data: v,
	})
	if err != nil {
		return nil, err
	}
	return decodeOrNil[T](e)
}

// Patch sends a partial update and merges the answer over the stored entity
func (r *GenericRepository[T]) Patch(ctx context.Context, id string, fields map[string]any) (*T, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	e, _, err := r.cache.Update(ctx, r.entityType, cache.MutateOptions{
		URL:    r.itemPath(id),
		Method: http.MethodPatch,
		Data:   fields,
	})
	if err != nil {
		return nil, err
	}
	return decodeOrNil[T](e)
}

// Save updates v when it carries an id and creates it otherwise.
// T must implement Entity for updates to be detected.
func (r *GenericRepository[T]) Save(ctx context.Context, v *T) (*T, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil %s", ErrDecodeFailed, r.entityType)
	}
	if ent, ok := any(v).(Entity); ok {
		if id := ent.GetPrimaryKeyValue(); id != "" {
			return r.Update(ctx, id, v)
		}
	}
	return r.Create(ctx, v)
}

// Delete removes id from the local store only
func (r *GenericRepository[T]) Delete(id string) {
	r.cache.Remove(r.entityType, id)
}

func (r *GenericRepository[T]) itemPath(id string) string {
	return r.opts.basePath + "/" + url.PathEscape(id)
}

func statusError(resp *httpcache.Response) error {
	switch {
	case resp == nil, resp.OK():
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
}

func decodeOrNil[T any](e normalize.Entity) (*T, error) {
	if e == nil {
		return nil, nil
	}
	return decode[T](e)
}

// decode round-trips the denormalized entity through JSON into T
func decode[T any](e normalize.Entity) (*T, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return &v, nil
}
