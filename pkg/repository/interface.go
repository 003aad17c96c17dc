package repository

import (
	"context"

	"github.com/scoutsense/entitycache/pkg/httpcache"
	"github.com/scoutsense/entitycache/pkg/normalize"
)

// Repository is a typed view of one entity table
type Repository[T any] interface {
	// Local reads, served from the entity store
	FindByID(id string) (*T, error)
	FindAll() ([]T, error)
	FindWhere(match func(normalize.Entity) bool) ([]T, error)
	First(match func(normalize.Entity) bool) (*T, error)
	Count() int
	Exists(id string) bool

	// Remote reads, through the request cache
	Fetch(ctx context.Context, id string, force bool) (*T, *httpcache.Response, error)
	FetchList(ctx context.Context, q *Query, force bool) ([]T, *httpcache.Response, error)

	// Commands
	Create(ctx context.Context, v any) (*T, error)
	Update(ctx context.Context, id string, v any) (*T, error)
	Save(ctx context.Context, v *T) (*T, error)
	Delete(id string)
}
