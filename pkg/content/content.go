// Package content defines the content identifiers and kind tags shared by
// the cache, preload and sync layers.
//
// The engine never interprets file bytes: lyrics, chord charts, tablature
// and sheet-music files all travel as opaque payloads plus a kind tag.
// Rendering is the consumer's problem.
package content

import "strings"

// ID is an opaque content identifier. Uniqueness is guaranteed by the
// remote service that issued it.
type ID string

func (id ID) String() string { return string(id) }

// Kind tags a piece of performance content at the cache boundary.
type Kind string

const (
	KindLyrics Kind = "lyrics"
	KindChords Kind = "chords"
	KindTab    Kind = "tab"
	KindSheet  Kind = "sheet"
	KindImage  Kind = "image"
)

// Valid reports whether k is a known content kind.
func (k Kind) Valid() bool {
	switch k {
	case KindLyrics, KindChords, KindTab, KindSheet, KindImage:
		return true
	}
	return false
}

// DefaultMIME returns the MIME type typically carried by this kind.
// Actual cache entries store the MIME type reported by the remote service;
// this is the fallback when none was given.
func (k Kind) DefaultMIME() string {
	switch k {
	case KindLyrics, KindChords, KindTab:
		return "text/plain; charset=utf-8"
	case KindSheet:
		return "application/pdf"
	case KindImage:
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

// KindFromMIME guesses a kind from a MIME type. Used when importing
// legacy libraries where files carry no tags.
func KindFromMIME(mime string) Kind {
	switch {
	case strings.HasPrefix(mime, "application/pdf"):
		return KindSheet
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case strings.HasPrefix(mime, "text/"):
		return KindLyrics
	default:
		return ""
	}
}

// Ref points at one piece of content to fetch: what it is and where the
// remote copy lives. Payload interpretation stays out of the engine.
type Ref struct {
	// ID is the content identifier.
	ID ID

	// Kind tags the payload for consumers.
	Kind Kind

	// RemotePath is the remote service path for this content
	// (e.g., "content/abc123"). Used by preload fetches.
	RemotePath string

	// SizeHint is the expected payload size in bytes, 0 if unknown.
	// Lets the preloader order large fetches last within a priority class.
	SizeHint int64
}
