package models

import "fmt"

// StreamKind identifies the role of a media track within a capture.
type StreamKind int

const (
	// StreamMain is the selected variant's primary rendition.
	StreamMain StreamKind = iota
	// StreamVideo is an alternate video rendition.
	StreamVideo
	// StreamAudio is an alternate audio rendition.
	StreamAudio
	// StreamSubtitle is a subtitle rendition.
	StreamSubtitle
)

// Stream identifies one logical track of a capture. It is immutable, comparable,
// and used as a map key throughout; Name and Lang are empty for StreamMain.
type Stream struct {
	Kind StreamKind
	Name string
	Lang string
}

// MainStream returns the identity of the primary rendition.
func MainStream() Stream {
	return Stream{Kind: StreamMain}
}

// String returns the display name used in log lines and segment file names:
// "main", "video_<name>", "audio_<name>" or "subtitle_<name>".
func (s Stream) String() string {
	switch s.Kind {
	case StreamVideo:
		return fmt.Sprintf("video_%s", s.Name)
	case StreamAudio:
		return fmt.Sprintf("audio_%s", s.Name)
	case StreamSubtitle:
		return fmt.Sprintf("subtitle_%s", s.Name)
	default:
		return "main"
	}
}
