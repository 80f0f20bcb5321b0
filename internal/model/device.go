package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Coordinates is a resolved latitude/longitude pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// ScanMode selects which query templates a sweep issues.
type ScanMode string

const (
	// ScanModeQuick issues a single RTSP query.
	ScanModeQuick ScanMode = "quick"
	// ScanModeFull issues one query per known camera signature.
	ScanModeFull ScanMode = "full"
)

// ParseScanMode parses a mode name case-insensitively.
func ParseScanMode(s string) (ScanMode, error) {
	switch ScanMode(strings.ToLower(strings.TrimSpace(s))) {
	case ScanModeQuick:
		return ScanModeQuick, nil
	case ScanModeFull:
		return ScanModeFull, nil
	default:
		return "", eris.Errorf("model: unknown scan mode %q", s)
	}
}

// QuerySpec is one device-search query bound to a single backend call.
type QuerySpec struct {
	Signature string `json:"signature" yaml:"signature"`
	Query     string `json:"query" yaml:"query"`
}

// DeviceRecord is a single device returned by the search backend.
// Latitude and Longitude are nil when the backend has no location fix.
type DeviceRecord struct {
	Identity       string   `json:"identity" yaml:"identity"`
	Organization   string   `json:"organization,omitempty" yaml:"organization,omitempty"`
	Product        string   `json:"product,omitempty" yaml:"product,omitempty"`
	City           string   `json:"city,omitempty" yaml:"city,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty" yaml:"longitude,omitempty"`
	Port           int      `json:"port,omitempty" yaml:"port,omitempty"`
	Signature      string   `json:"signature,omitempty" yaml:"signature,omitempty"`
	Screenshot     string   `json:"-" yaml:"-"` // base64, as delivered by the backend
	ScreenshotMime string   `json:"screenshot_mime,omitempty" yaml:"screenshot_mime,omitempty"`
}

// HasLocation reports whether both coordinates are present.
func (r DeviceRecord) HasLocation() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Position returns the record's coordinates. ok is false when either is missing.
func (r DeviceRecord) Position() (c Coordinates, ok bool) {
	if !r.HasLocation() {
		return Coordinates{}, false
	}
	return Coordinates{Latitude: *r.Latitude, Longitude: *r.Longitude}, true
}

// MergedResultSet holds device records keyed by identity. The first record
// added for an identity is kept; later ones are dropped, not merged.
type MergedResultSet struct {
	order []string
	byID  map[string]DeviceRecord
}

// NewMergedResultSet returns an empty set.
func NewMergedResultSet() *MergedResultSet {
	return &MergedResultSet{byID: make(map[string]DeviceRecord)}
}

// Add inserts rec if its identity is not already present. It returns false
// when the record was dropped, either as a duplicate or for lacking an identity.
func (s *MergedResultSet) Add(rec DeviceRecord) bool {
	if rec.Identity == "" {
		return false
	}
	if s.byID == nil {
		s.byID = make(map[string]DeviceRecord)
	}
	if _, ok := s.byID[rec.Identity]; ok {
		return false
	}
	s.byID[rec.Identity] = rec
	s.order = append(s.order, rec.Identity)
	return true
}

// Get returns the record stored for identity.
func (s *MergedResultSet) Get(identity string) (DeviceRecord, bool) {
	if s == nil {
		return DeviceRecord{}, false
	}
	rec, ok := s.byID[identity]
	return rec, ok
}

// Len returns the number of unique identities.
func (s *MergedResultSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Records returns the records in first-seen order.
func (s *MergedResultSet) Records() []DeviceRecord {
	if s == nil {
		return nil
	}
	out := make([]DeviceRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// SearchFailure records a query that the search backend could not serve.
type SearchFailure struct {
	Query     QuerySpec `json:"query" yaml:"query"`
	Err       string    `json:"error" yaml:"error"`
	Transient bool      `json:"transient" yaml:"transient"`
}

func (f SearchFailure) Error() string {
	return "search " + f.Query.Signature + ": " + f.Err
}
