package capture

import (
	"fmt"

	"hlsgrab/internal/models"
)

// PlaylistError reports that the entry playlist could not be fetched or
// understood. It is fatal and aborts the capture before any poller starts.
type PlaylistError struct {
	URL string
	Err error
}

func (e *PlaylistError) Error() string {
	return fmt.Sprintf("entry playlist %s: %v", e.URL, e.Err)
}

func (e *PlaylistError) Unwrap() error { return e.Err }

// PollError reports that a stream's media playlist became unfetchable or
// unparseable mid-capture. It ends that stream's poller; whether it ends the
// whole capture depends on the fail-fast setting.
type PollError struct {
	Stream models.Stream
	Err    error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("polling %s: %v", e.Stream, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// FetchError reports that one segment could not be fetched or decrypted after
// retries. Always non-fatal: the segment is dropped, leaving a gap.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching segment %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// WriteError reports a failure persisting one segment. Same gap semantics as
// FetchError.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
