package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results []googleResult `json:"results"`
	Status  string         `json:"status"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
}

// lookupGoogle resolves a postal code with component filtering, so a ZIP is
// never matched against a street number or place name.
func (g *geocoder) lookupGoogle(ctx context.Context, q PostalQuery) (*Result, error) {
	if g.googleKey == "" {
		return nil, eris.New("geocode: google api key not configured")
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: google rate limit")
	}

	params := url.Values{
		"components": {"postal_code:" + q.PostalCode + "|country:" + q.Country},
		"key":        {g.googleKey},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleGeocodeURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(stripURL(err), "geocode: google build request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(stripURL(err), "geocode: google request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: google returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google read body")
	}

	var googleResp googleGeocodeResponse
	if err := json.Unmarshal(body, &googleResp); err != nil {
		return nil, eris.Wrap(err, "geocode: google parse response")
	}

	switch googleResp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return &Result{Matched: false, Source: "google"}, nil
	default:
		return nil, eris.Errorf("geocode: google status %s", googleResp.Status)
	}
	if len(googleResp.Results) == 0 {
		return &Result{Matched: false, Source: "google"}, nil
	}

	result := googleResp.Results[0]
	return &Result{
		Latitude:    result.Geometry.Location.Lat,
		Longitude:   result.Geometry.Location.Lng,
		Source:      "google",
		DisplayName: result.FormattedAddress,
		Matched:     true,
	}, nil
}

// stripURL drops the request URL from a transport error. Google requests
// carry the API key in the query string.
func stripURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
