package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMediaType(t *testing.T) {
	tests := []struct {
		in   string
		want MediaType
		ok   bool
	}{
		{"image", MediaImage, true},
		{"Photo", MediaImage, true},
		{" video ", MediaVideo, true},
		{"audio", MediaAudio, true},
		{"unknown", MediaUnknown, true},
		{"hologram", MediaUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseMediaType(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestMediaType_StringRoundTrip(t *testing.T) {
	for _, mt := range []MediaType{MediaUnknown, MediaImage, MediaVideo, MediaAudio} {
		got, ok := ParseMediaType(mt.String())
		assert.True(t, ok)
		assert.Equal(t, mt, got)
	}
}

func TestParseSubtypes(t *testing.T) {
	mask, unknown := ParseSubtypes([]string{"panorama", "Screenshot", "sepia"})
	assert.Equal(t, SubtypePanorama|SubtypeScreenshot, mask)
	assert.Equal(t, []string{"sepia"}, unknown)
	assert.Equal(t, []string{"panorama", "screenshot"}, mask.Names())
	assert.Empty(t, SubtypeNone.Names())
}

func TestFilter_Match(t *testing.T) {
	photo := Asset{ID: "a", MediaType: MediaImage}
	pano := Asset{ID: "b", MediaType: MediaImage, Subtypes: SubtypePanorama}
	clip := Asset{ID: "c", MediaType: MediaVideo}

	tests := []struct {
		name   string
		filter Filter
		asset  Asset
		want   bool
	}{
		{"empty filter allows all", Filter{}, clip, true},
		{"type allowed", Filter{MediaTypes: []MediaType{MediaImage}}, photo, true},
		{"type rejected", Filter{MediaTypes: []MediaType{MediaImage}}, clip, false},
		{"either type", Filter{MediaTypes: []MediaType{MediaImage, MediaVideo}}, clip, true},
		{"subtype equal", Filter{Subtypes: SubtypePanorama}, pano, true},
		{"subtype missing", Filter{Subtypes: SubtypePanorama}, photo, false},
		{"both clauses", Filter{MediaTypes: []MediaType{MediaVideo}, Subtypes: SubtypePanorama}, pano, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(tt.asset))
		})
	}
}

func TestAuthorizationState_String(t *testing.T) {
	assert.Equal(t, "not_determined", NotDetermined.String())
	assert.Equal(t, "authorized", Authorized.String())
	assert.Equal(t, "denied", Denied.String())
	assert.Equal(t, "restricted", Restricted.String())
}
