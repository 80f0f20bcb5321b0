package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
)

const nominatimSearchURL = "https://nominatim.openstreetmap.org/search"

// nominatimPlace is one element of the Nominatim search response. Coordinates
// arrive as strings.
type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// lookupNominatim runs a structured postalcode+country search.
func (g *geocoder) lookupNominatim(ctx context.Context, q PostalQuery) (*Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim rate limit")
	}

	params := url.Values{
		"postalcode": {q.PostalCode},
		"country":    {q.Country},
		"format":     {"jsonv2"},
		"limit":      {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.nominatimURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim build request")
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: nominatim returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim read body")
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse response")
	}
	if len(places) == 0 {
		return &Result{Matched: false, Source: "nominatim"}, nil
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: nominatim latitude %q", places[0].Lat)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: nominatim longitude %q", places[0].Lon)
	}

	return &Result{
		Latitude:    lat,
		Longitude:   lon,
		Source:      "nominatim",
		DisplayName: places[0].DisplayName,
		Matched:     true,
	}, nil
}
