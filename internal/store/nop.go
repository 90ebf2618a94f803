package store

import (
	"context"

	"github.com/amishk599/applyhook/internal/model"
)

// NopCache is a no-op cache used by the check command. It never remembers an
// ID, so every application appears new on each pass.
type NopCache struct{}

func NewNopCache() *NopCache { return &NopCache{} }

func (NopCache) Load(context.Context) ([]string, error)           { return nil, nil }
func (NopCache) Contains(context.Context, string) (bool, error)   { return false, nil }
func (NopCache) Extend(context.Context, []string) error           { return nil }
func (NopCache) Cleanup(context.Context, int, int) (bool, error)  { return false, nil }
func (NopCache) List(context.Context) ([]model.CacheEntry, error) { return nil, nil }
