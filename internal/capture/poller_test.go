package capture

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hlsgrab/internal/fetch"
	"hlsgrab/internal/logger"
	"hlsgrab/internal/metrics"
	"hlsgrab/internal/models"
)

func testLivestream(t *testing.T) *Livestream {
	t.Helper()
	network := testNetwork()
	return &Livestream{
		streams: map[models.Stream]*url.URL{},
		client:  fetch.New(network.Timeout, network.MaxRetries, "", logger.Nop{}),
		stopper: NewStopper(),
		network: network,
		log:     logger.Nop{},
		met:     metrics.New(),
	}
}

// runPoll drives one poller to completion and returns the requests it
// emitted plus its error.
func runPoll(t *testing.T, live *Livestream, playlistURL string) ([]request, error) {
	t.Helper()

	u, err := url.Parse(playlistURL)
	require.NoError(t, err)

	tx := make(chan request, 128)
	consumerDone := make(chan struct{})
	defer close(consumerDone)

	pollErr := live.poll(context.Background(), models.MainStream(), u, tx, consumerDone)

	var out []request
	for len(tx) > 0 {
		out = append(out, <-tx)
	}
	return out, pollErr
}

// servePlaylists serves one playlist body per request, repeating the last
// one once the slice is exhausted.
func servePlaylists(t *testing.T, bodies ...string) *httptest.Server {
	t.Helper()
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		if n >= len(bodies) {
			n = len(bodies) - 1
		}
		fmt.Fprint(w, bodies[n])
	}))
	t.Cleanup(server.Close)
	return server
}

func TestPoll_SlidingWindowEmitsEachSegmentOnce(t *testing.T) {
	first := `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:1
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:1.0,
seg0.ts
#EXTINF:1.0,
seg1.ts
#EXTINF:1.0,
seg2.ts
`
	second := `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:1
#EXT-X-MEDIA-SEQUENCE:1
#EXTINF:1.0,
seg1.ts
#EXTINF:1.0,
seg2.ts
#EXTINF:1.0,
seg3.ts
#EXTINF:1.0,
seg4.ts
#EXT-X-ENDLIST
`
	server := servePlaylists(t, first, second)

	reqs, err := runPoll(t, testLivestream(t), server.URL+"/media.m3u8")
	require.NoError(t, err)
	require.Len(t, reqs, 5)

	for i, req := range reqs {
		assert.Equal(t, models.SegmentSequence, req.segment.Kind)
		assert.Equal(t, uint64(i), req.segment.Seq)
		assert.Equal(t, server.URL+fmt.Sprintf("/seg%d.ts", i), req.segment.URL)
	}
}

func TestPoll_UnchangedPlaylistEmitsNothingNew(t *testing.T) {
	window := `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:1
#EXT-X-MEDIA-SEQUENCE:7
#EXTINF:1.0,
seg7.ts
#EXTINF:1.0,
seg8.ts
`
	closed := window + "#EXT-X-ENDLIST\n"
	server := servePlaylists(t, window, window, closed)

	reqs, err := runPoll(t, testLivestream(t), server.URL+"/media.m3u8")
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, uint64(7), reqs[0].segment.Seq)
	assert.Equal(t, uint64(8), reqs[1].segment.Seq)
}

func TestPoll_InitializationSegmentEmittedOnceAndFirst(t *testing.T) {
	first := `#EXTM3U
#EXT-X-VERSION:6
#EXT-X-TARGETDURATION:1
#EXT-X-MEDIA-SEQUENCE:0
#EXT-X-MAP:URI="init.mp4"
#EXTINF:1.0,
seg0.m4s
#EXTINF:1.0,
seg1.m4s
`
	second := `#EXTM3U
#EXT-X-VERSION:6
#EXT-X-TARGETDURATION:1
#EXT-X-MEDIA-SEQUENCE:1
#EXT-X-MAP:URI="init.mp4"
#EXTINF:1.0,
seg1.m4s
#EXTINF:1.0,
seg2.m4s
#EXT-X-ENDLIST
`
	server := servePlaylists(t, first, second)

	reqs, err := runPoll(t, testLivestream(t), server.URL+"/media.m3u8")
	require.NoError(t, err)
	require.Len(t, reqs, 4)

	assert.Equal(t, models.SegmentInitialization, reqs[0].segment.Kind)
	assert.Equal(t, server.URL+"/init.mp4", reqs[0].segment.URL)
	for _, req := range reqs[1:] {
		assert.Equal(t, models.SegmentSequence, req.segment.Kind)
	}
}

func TestPoll_DiscontinuityAdvancesOrderingKey(t *testing.T) {
	playlist := `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:1
#EXT-X-MEDIA-SEQUENCE:5
#EXTINF:1.0,
seg5.ts
#EXT-X-DISCONTINUITY
#EXTINF:1.0,
seg6.ts
#EXT-X-ENDLIST
`
	server := servePlaylists(t, playlist)

	reqs, err := runPoll(t, testLivestream(t), server.URL+"/media.m3u8")
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	assert.Equal(t, models.SegmentKey{Discon: 0, Seq: 5}, reqs[0].segment.Key())
	assert.Equal(t, models.SegmentKey{Discon: 1, Seq: 6}, reqs[1].segment.Key())
	assert.True(t, reqs[1].segment.Key().After(reqs[0].segment.Key()))
}

func TestPoll_ByteRangeSegments(t *testing.T) {
	playlist := `#EXTM3U
#EXT-X-VERSION:4
#EXT-X-TARGETDURATION:1
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:1.0,
#EXT-X-BYTERANGE:1000@0
all.ts
#EXTINF:1.0,
#EXT-X-BYTERANGE:1000@1000
all.ts
#EXT-X-ENDLIST
`
	server := servePlaylists(t, playlist)

	reqs, err := runPoll(t, testLivestream(t), server.URL+"/media.m3u8")
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	require.NotNil(t, reqs[0].segment.ByteRange)
	assert.Equal(t, "bytes=0-999", reqs[0].segment.RangeHeader())
	assert.Equal(t, "bytes=1000-1999", reqs[1].segment.RangeHeader())
}

func TestPoll_MasterPlaylistIsPollError(t *testing.T) {
	master := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1200000
high/media.m3u8
`
	server := servePlaylists(t, master)

	_, err := runPoll(t, testLivestream(t), server.URL+"/media.m3u8")
	require.Error(t, err)
	var pe *PollError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, models.MainStream(), pe.Stream)
}

func TestPoll_FetchFailureIsPollError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	_, err := runPoll(t, testLivestream(t), server.URL+"/media.m3u8")
	var pe *PollError
	require.True(t, errors.As(err, &pe))
}

// A stop between polls ends the poller cleanly instead of after the full
// target-duration sleep.
func TestPoll_StopInterruptsWait(t *testing.T) {
	playlist := `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:60
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:60.0,
seg0.ts
`
	server := servePlaylists(t, playlist)
	live := testLivestream(t)

	done := make(chan error, 1)
	go func() {
		_, err := runPoll(t, live, server.URL+"/media.m3u8")
		done <- err
	}()

	time.Sleep(100 * time.Millisecond)
	live.stopper.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}

// A closed consumer channel unblocks a poller whose requests are no longer
// being drained.
func TestPoll_ConsumerShutdownUnblocksSend(t *testing.T) {
	playlist := `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:1
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:1.0,
seg0.ts
#EXTINF:1.0,
seg1.ts
#EXT-X-ENDLIST
`
	server := servePlaylists(t, playlist)
	live := testLivestream(t)

	u, err := url.Parse(server.URL + "/media.m3u8")
	require.NoError(t, err)

	tx := make(chan request) // unbuffered and never read
	consumerDone := make(chan struct{})
	close(consumerDone)

	done := make(chan error, 1)
	go func() {
		done <- live.poll(context.Background(), models.MainStream(), u, tx, consumerDone)
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poller blocked on a dead consumer")
	}
}
