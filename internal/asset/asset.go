// Package asset defines the media-library descriptors the picker pages
// through, the filter used to query them, and the Index port that a
// concrete photo library implements.
package asset

import (
	"context"
	"strings"
	"time"
)

// MediaType classifies a library item.
type MediaType int

const (
	MediaUnknown MediaType = iota
	MediaImage
	MediaVideo
	MediaAudio
)

// String returns the lowercase name used in config files and MCP payloads.
func (m MediaType) String() string {
	switch m {
	case MediaImage:
		return "image"
	case MediaVideo:
		return "video"
	case MediaAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// ParseMediaType converts a name produced by String back to a MediaType.
// Unrecognised names return MediaUnknown and false.
func ParseMediaType(s string) (MediaType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "image", "photo":
		return MediaImage, true
	case "video":
		return MediaVideo, true
	case "audio":
		return MediaAudio, true
	case "unknown":
		return MediaUnknown, true
	default:
		return MediaUnknown, false
	}
}

// Subtype is a bitmask of secondary media traits.
type Subtype uint32

const (
	SubtypePanorama Subtype = 1 << iota
	SubtypeScreenshot
	SubtypeAnimated

	// SubtypeNone is the zero mask.
	SubtypeNone Subtype = 0
)

var subtypeNames = []struct {
	bit  Subtype
	name string
}{
	{SubtypePanorama, "panorama"},
	{SubtypeScreenshot, "screenshot"},
	{SubtypeAnimated, "animated"},
}

// Names lists the set bits by name, in declaration order.
func (s Subtype) Names() []string {
	var out []string
	for _, n := range subtypeNames {
		if s&n.bit != 0 {
			out = append(out, n.name)
		}
	}
	return out
}

// ParseSubtypes ORs together the named subtypes. Unknown names are
// reported in the second return value.
func ParseSubtypes(names []string) (Subtype, []string) {
	var mask Subtype
	var unknown []string
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		found := false
		for _, n := range subtypeNames {
			if n.name == name {
				mask |= n.bit
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, raw)
		}
	}
	return mask, unknown
}

// Asset describes one library item. Values are immutable once returned by
// an Index; callers refer to them by position and never modify them.
type Asset struct {
	// ID is the index-assigned identifier, stable across queries.
	ID string

	MediaType MediaType
	Subtypes  Subtype

	// CreatedAt orders the library, newest first.
	CreatedAt time.Time

	PixelWidth  int
	PixelHeight int

	// Location is an opaque reference a Decoder knows how to open, such as
	// a file path for a filesystem library.
	Location string
}

// Filter restricts a query. Both clauses must hold.
type Filter struct {
	// MediaTypes is the allowed set. Empty allows every type.
	MediaTypes []MediaType

	// Subtypes, when non-zero, must equal the asset's subtype mask.
	Subtypes Subtype
}

// Match reports whether a satisfies the filter.
func (f Filter) Match(a Asset) bool {
	if len(f.MediaTypes) > 0 {
		ok := false
		for _, mt := range f.MediaTypes {
			if a.MediaType == mt {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Subtypes != SubtypeNone && a.Subtypes != f.Subtypes {
		return false
	}
	return true
}

// AuthorizationState mirrors the access states of a platform photo library.
type AuthorizationState int

const (
	NotDetermined AuthorizationState = iota
	Authorized
	Denied
	Restricted
)

func (s AuthorizationState) String() string {
	switch s {
	case Authorized:
		return "authorized"
	case Denied:
		return "denied"
	case Restricted:
		return "restricted"
	default:
		return "not_determined"
	}
}

// Index is an ordered, filterable asset library queried by page.
type Index interface {
	// Query returns at most limit assets matching filter, newest first.
	Query(ctx context.Context, filter Filter, limit int) ([]Asset, error)

	// Resolve returns the assets that still exist for ids, in the order
	// of ids. Missing IDs are omitted without error.
	Resolve(ctx context.Context, ids []string) ([]Asset, error)

	AuthorizationState() AuthorizationState

	// RequestAuthorization asks for access. The callback may run on any
	// goroutine and receives the resulting state.
	RequestAuthorization(callback func(AuthorizationState))
}
