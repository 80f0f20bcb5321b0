package model

// DisplayPayload is the per-device message handed to a delivery sink.
// Image is nil when the device has no screenshot or it failed to decode.
type DisplayPayload struct {
	Identity  string `json:"identity"`
	Text      string `json:"text"`
	Image     []byte `json:"-"`
	ImageMime string `json:"image_mime,omitempty"`
	DecodeErr string `json:"decode_error,omitempty"`
}

// HasImage reports whether the payload carries a decoded screenshot.
func (p DisplayPayload) HasImage() bool {
	return len(p.Image) > 0
}

// MapMarker is one device pin on the map artifact.
type MapMarker struct {
	Identity string      `json:"identity"`
	Position Coordinates `json:"position"`
	Popup    string      `json:"popup"`
}

// MapArtifact is a self-contained HTML map regenerated for every sweep.
type MapArtifact struct {
	Name    string      `json:"name"`
	Center  Coordinates `json:"center"`
	Markers []MapMarker `json:"markers"`
	HTML    []byte      `json:"-"`
}
