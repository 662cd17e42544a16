package capture

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/grafov/m3u8"

	"hlsgrab/internal/config"
	"hlsgrab/internal/fetch"
	"hlsgrab/internal/logger"
	"hlsgrab/internal/metrics"
	"hlsgrab/internal/models"
)

// New fetches the entry playlist once and builds a Livestream for it.
//
// If the entry is a variant index, the variant with the largest declared
// bandwidth becomes Main (ties broken by source order, which is arbitrary)
// and every alternate rendition referenced by that variant's audio, video and
// subtitle group identifiers is registered alongside it. If the entry is
// already a media playlist, only Main is registered, under the final URL
// after any redirects.
//
// The returned Stopper is shared with the Livestream; stopping it ends the
// capture cooperatively.
func New(ctx context.Context, rawURL string, network config.NetworkOptions, log logger.Logger, met *metrics.Metrics) (*Livestream, *Stopper, error) {
	client := fetch.New(network.Timeout, network.MaxRetries, network.UserAgent, log)

	body, finalURL, err := client.Get(ctx, rawURL)
	if err != nil {
		return nil, nil, &PlaylistError{URL: rawURL, Err: err}
	}

	base, err := url.Parse(finalURL)
	if err != nil {
		return nil, nil, &PlaylistError{URL: rawURL, Err: err}
	}

	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return nil, nil, &PlaylistError{URL: rawURL, Err: err}
	}

	streams := make(map[models.Stream]*url.URL)

	switch listType {
	case m3u8.MASTER:
		master := playlist.(*m3u8.MasterPlaylist)

		variant := bestVariant(master)
		if variant == nil {
			return nil, nil, &PlaylistError{URL: rawURL, Err: fmt.Errorf("no variants with a declared bandwidth")}
		}

		mainURL, err := fetch.AbsoluteURL(base, variant.URI)
		if err != nil {
			return nil, nil, &PlaylistError{URL: rawURL, Err: err}
		}
		streams[models.MainStream()] = mainURL

		if err := registerAlternatives(streams, variant, base); err != nil {
			return nil, nil, &PlaylistError{URL: rawURL, Err: err}
		}
	case m3u8.MEDIA:
		streams[models.MainStream()] = base
	default:
		return nil, nil, &PlaylistError{URL: rawURL, Err: fmt.Errorf("unrecognized playlist type")}
	}

	stopper := NewStopper()

	live := &Livestream{
		streams: streams,
		client:  client,
		stopper: stopper,
		network: network,
		log:     log,
		met:     met,
	}
	return live, stopper, nil
}

// bestVariant returns the variant with the numerically largest bandwidth, or
// nil when the master playlist has none. A strictly-greater comparison keeps
// the first of equal-bandwidth variants.
func bestVariant(master *m3u8.MasterPlaylist) *m3u8.Variant {
	var best *m3u8.Variant
	for _, v := range master.Variants {
		if v == nil {
			continue
		}
		if best == nil || v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	return best
}

// registerAlternatives adds every alternate rendition whose group is
// referenced by variant and whose URI is present. Matching is by group
// identifier only, exactly as the playlist declares it.
func registerAlternatives(streams map[models.Stream]*url.URL, variant *m3u8.Variant, base *url.URL) error {
	groups := []struct {
		id   string
		kind models.StreamKind
	}{
		{variant.Audio, models.StreamAudio},
		{variant.Video, models.StreamVideo},
		{variant.Subtitles, models.StreamSubtitle},
	}

	for _, g := range groups {
		if g.id == "" {
			continue
		}
		for _, alt := range variant.Alternatives {
			if alt == nil || alt.GroupId != g.id || alt.URI == "" {
				continue
			}
			u, err := fetch.AbsoluteURL(base, alt.URI)
			if err != nil {
				return err
			}
			streams[models.Stream{Kind: g.kind, Name: alt.Name, Lang: alt.Language}] = u
		}
	}
	return nil
}
