package providers

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/autocare/autocare-backend/internal/geo"
	"github.com/autocare/autocare-backend/pkg/redis"
)

const geoSetName = "providers"

type geoStore interface {
	GeoKey(name string) string
	GeoAdd(ctx context.Context, key, member string, lat, lng float64) error
	GeoRemove(ctx context.Context, key string, members ...string) error
	GeoSearch(ctx context.Context, key string, lat, lng, radiusKm float64, limit int) ([]redis.GeoMember, error)
}

// GeoHit is a provider found by a radius search.
type GeoHit struct {
	ProviderID uuid.UUID
	DistanceKm float64
}

// GeoIndex mirrors the latest position of available providers in a redis GEO set.
type GeoIndex struct {
	store geoStore
	key   string
}

func NewGeoIndex(store geoStore) *GeoIndex {
	return &GeoIndex{store: store, key: store.GeoKey(geoSetName)}
}

func (g *GeoIndex) Upsert(ctx context.Context, providerID uuid.UUID, p geo.Point) error {
	return g.store.GeoAdd(ctx, g.key, providerID.String(), p.Lat, p.Lng)
}

func (g *GeoIndex) Remove(ctx context.Context, providerID uuid.UUID) error {
	return g.store.GeoRemove(ctx, g.key, providerID.String())
}

// Search returns providers within radiusKm of p, nearest first. Members that
// are not provider ids are skipped.
func (g *GeoIndex) Search(ctx context.Context, p geo.Point, radiusKm float64, limit int) ([]GeoHit, error) {
	members, err := g.store.GeoSearch(ctx, g.key, p.Lat, p.Lng, radiusKm, limit)
	if err != nil {
		return nil, fmt.Errorf("geo search: %w", err)
	}
	hits := make([]GeoHit, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m.Name)
		if err != nil {
			continue
		}
		hits = append(hits, GeoHit{ProviderID: id, DistanceKm: m.DistanceKm})
	}
	return hits, nil
}
