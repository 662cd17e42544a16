package capture

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/grafov/m3u8"

	"hlsgrab/internal/crypt"
	"hlsgrab/internal/fetch"
	"hlsgrab/internal/models"
)

// poll repeatedly fetches one stream's media playlist and emits fetch
// requests for segments it has not seen before. It returns nil when the
// playlist signals end-of-stream, when the Stopper fires, or when the
// consumer has shut down; a playlist fetch/parse failure returns a PollError.
//
// Dedup state is the last emitted ordering key: a segment is emitted only
// when its (discontinuity generation, sequence number) orders strictly after
// it, so the accepted key sequence is strictly increasing for the lifetime of
// the poller.
func (l *Livestream) poll(ctx context.Context, stream models.Stream, playlistURL *url.URL, tx chan<- request, consumerDone <-chan struct{}) error {
	var lastKey *models.SegmentKey
	initSent := false
	// Carries across iterations: a key declared for an already-consumed
	// segment still governs later segments of the window.
	enc := crypt.None()

	send := func(req request) bool {
		select {
		case tx <- req:
			return true
		case <-consumerDone:
			return false
		}
	}

	for {
		start := time.Now()
		foundNew := false

		l.met.IncPolls()
		l.log.Debugf("Fetching playlist %s", playlistURL)
		body, finalURL, err := l.client.Get(ctx, playlistURL.String())
		if err != nil {
			return &PollError{Stream: stream, Err: err}
		}

		base, err := url.Parse(finalURL)
		if err != nil {
			return &PollError{Stream: stream, Err: err}
		}

		playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
		if err != nil {
			return &PollError{Stream: stream, Err: err}
		}
		if listType != m3u8.MEDIA {
			return &PollError{Stream: stream, Err: fmt.Errorf("%s is not a media playlist", playlistURL)}
		}
		media := playlist.(*m3u8.MediaPlaylist)

		var index, disconOffset uint64
		for _, seg := range media.Segments {
			if seg == nil {
				continue
			}
			seq := media.SeqNo + index
			index++

			if seg.Discontinuity {
				disconOffset++
			}
			key := models.SegmentKey{Discon: media.DiscontinuitySeq + disconOffset, Seq: seq}

			// Already emitted in an earlier poll.
			if lastKey != nil && !key.After(*lastKey) {
				continue
			}

			if seg.Key != nil {
				enc, err = crypt.Resolve(ctx, l.client, seg.Key, base, seq)
				if err != nil {
					return &PollError{Stream: stream, Err: err}
				}
			}

			k := key
			lastKey = &k
			foundNew = true

			// EXT-X-MAP declared before the first segment lives on the
			// playlist; a mid-stream one lives on the segment itself.
			initMap := seg.Map
			if initMap == nil {
				initMap = media.Map
			}
			if !initSent && initMap != nil {
				initURL, err := fetch.AbsoluteURL(base, initMap.URI)
				if err != nil {
					return &PollError{Stream: stream, Err: err}
				}
				l.log.Debugf("Found initialization segment %s for %s", initURL, stream)
				initReq := request{
					stream: stream,
					segment: models.Segment{
						Kind:      models.SegmentInitialization,
						URL:       initURL.String(),
						ByteRange: byteRange(initMap.Limit, initMap.Offset),
					},
					enc: crypt.None(),
				}
				if !send(initReq) {
					return nil
				}
				initSent = true
			}

			segURL, err := fetch.AbsoluteURL(base, seg.URI)
			if err != nil {
				return &PollError{Stream: stream, Err: err}
			}

			l.log.Debugf("Found new segment %s for %s", segURL, stream)
			seqReq := request{
				stream: stream,
				segment: models.Segment{
					Kind:      models.SegmentSequence,
					URL:       segURL.String(),
					ByteRange: byteRange(seg.Limit, seg.Offset),
					Discon:    key.Discon,
					Seq:       seq,
				},
				enc: enc,
			}
			if !send(seqReq) {
				return nil
			}
		}

		if media.Closed {
			l.log.Infof("Playlist for %s ended", stream)
			return nil
		}

		// Re-poll after a full target duration when this round found new
		// segments, half otherwise. Scheduled from the iteration's start to
		// avoid cumulative drift, and raced against the stop signal.
		wait := time.Duration(media.TargetDuration * float64(time.Second))
		if !foundNew {
			wait /= 2
		}

		timer := time.NewTimer(time.Until(start.Add(wait)))
		select {
		case <-l.stopper.Done():
			timer.Stop()
		case <-timer.C:
		}
		if l.stopper.Stopped() {
			return nil
		}
	}
}

// byteRange converts an EXT-X-BYTERANGE length/offset pair; a zero length
// means the segment has no range.
func byteRange(limit, offset int64) *models.ByteRange {
	if limit == 0 {
		return nil
	}
	return &models.ByteRange{Length: limit, Offset: offset}
}
