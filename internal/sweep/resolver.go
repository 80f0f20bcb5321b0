package sweep

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/camera-recon/internal/model"
	"github.com/sells-group/camera-recon/pkg/geocode"
)

// ErrNotFound is returned when a postal code cannot be resolved. It is the
// only sweep-fatal error.
var ErrNotFound = eris.New("sweep: postal code not found")

// Resolver turns a postal code into coordinates.
type Resolver interface {
	Resolve(ctx context.Context, postalCode string) (model.Coordinates, error)
}

// GeoResolver resolves postal codes through a geocode.Client. Input is not
// validated; malformed codes are left to the backend.
type GeoResolver struct {
	geocoder geocode.Client
	country  string
}

// NewGeoResolver creates a resolver scoped to country ("US" when empty).
func NewGeoResolver(g geocode.Client, country string) *GeoResolver {
	if country == "" {
		country = "US"
	}
	return &GeoResolver{geocoder: g, country: country}
}

// Resolve performs one lookup. Backend errors and misses both map to
// ErrNotFound and are not retried.
func (r *GeoResolver) Resolve(ctx context.Context, postalCode string) (model.Coordinates, error) {
	res, err := r.geocoder.LookupPostalCode(ctx, geocode.PostalQuery{
		PostalCode: postalCode,
		Country:    r.country,
	})
	if err != nil {
		zap.L().Warn("sweep: geocode lookup failed",
			zap.String("postal_code", postalCode),
			zap.Error(err),
		)
		return model.Coordinates{}, eris.Wrapf(ErrNotFound, "postal code %q: %v", postalCode, err)
	}
	if res == nil || !res.Matched {
		return model.Coordinates{}, eris.Wrapf(ErrNotFound, "postal code %q", postalCode)
	}
	return model.Coordinates{Latitude: res.Latitude, Longitude: res.Longitude}, nil
}
