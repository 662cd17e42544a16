package capture

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"hlsgrab/internal/config"
	"hlsgrab/internal/crypt"
	"hlsgrab/internal/fetch"
	"hlsgrab/internal/logger"
	"hlsgrab/internal/metrics"
	"hlsgrab/internal/models"
	"hlsgrab/internal/mux"
)

// requestQueueSize bounds the fan-in queue between pollers and the download
// workers. Pollers block once the queue is full.
const requestQueueSize = 256

// Livestream is one capture run: the stream map built by New, the shared
// retrying client, the cooperative stop signal and the network policy. It is
// consumed by exactly one Download call.
type Livestream struct {
	streams map[models.Stream]*url.URL
	client  *fetch.Client
	stopper *Stopper
	network config.NetworkOptions
	log     logger.Logger
	met     *metrics.Metrics
}

// request is one segment-fetch order emitted by a poller.
type request struct {
	stream  models.Stream
	segment models.Segment
	enc     crypt.Encryption
}

// result is one completed fetch, successful or not.
type result struct {
	stream  models.Stream
	segment models.Segment
	data    []byte
	err     error
}

// Streams returns the registered stream identities, sorted by display name.
func (l *Livestream) Streams() []models.Stream {
	out := make([]models.Stream, 0, len(l.streams))
	for s := range l.streams {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Download captures the livestream to disk. It runs one playlist poller per
// stream, downloads and decrypts discovered segments with bounded
// concurrency, persists them under <output>/segments and finally remuxes
// them unless disabled. It returns the first poller error, even when most of
// the capture succeeded; per-segment failures are logged and absorbed.
func (l *Livestream) Download(ctx context.Context, opts config.DownloadOptions) error {
	segmentsDir := filepath.Join(opts.OutputDir, "segments")
	if err := os.MkdirAll(segmentsDir, 0o755); err != nil {
		return err
	}

	requests := make(chan request, requestQueueSize)
	results := make(chan result)
	// Closed when the consumer loop stops; unblocks producers so abandoned
	// work is dropped rather than awaited.
	consumerDone := make(chan struct{})

	// Records whether any poller failed, for the fail-fast check in the
	// consumer loop.
	var pollerFailed atomic.Bool

	g := new(errgroup.Group)
	for stream, playlistURL := range l.streams {
		stream, playlistURL := stream, playlistURL
		g.Go(func() error {
			l.met.PollerStarted()
			defer l.met.PollerStopped()

			err := l.poll(ctx, stream, playlistURL, requests, consumerDone)
			if err != nil {
				l.log.Errorf("Poller for %s failed: %v", stream, err)
				if !opts.NoFailFast {
					pollerFailed.Store(true)
					l.stopper.Stop()
				}
			}
			return err
		})
	}

	// The fan-in queue closes once every poller has returned.
	pollErr := make(chan error, 1)
	go func() {
		pollErr <- g.Wait()
		close(requests)
	}()

	// Bounded fetch/decrypt pipeline. Completion order is whatever the
	// workers produce, not request order.
	var workers sync.WaitGroup
	for i := 0; i < l.network.MaxConcurrent; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for req := range requests {
				data, err := l.fetchSegment(ctx, req)
				select {
				case results <- result{stream: req.stream, segment: req.segment, data: data, err: err}:
				case <-consumerDone:
					return
				}
			}
		}()
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	// Single-threaded consumer: the only writer of the init cache and the
	// manifest.
	w := newWriter(segmentsDir, l.log, l.met)
	for res := range results {
		if l.stopper.Stopped() && pollerFailed.Load() {
			break
		}
		if res.err != nil {
			l.log.Warnf("Dropping segment %s: %v", res.segment.URL, res.err)
			l.met.IncSegmentFailures()
			continue
		}
		if err := w.save(res.stream, res.segment, res.data); err != nil {
			l.log.Warnf("Dropping segment %s: %v", res.segment.URL, err)
			l.met.IncSegmentFailures()
			continue
		}
	}
	close(consumerDone)

	err := <-pollErr

	if !opts.NoRemux {
		if remuxErr := mux.Remux(ctx, w.snapshot(), opts.OutputDir, opts.RemuxTarget, l.log); remuxErr != nil {
			return remuxErr
		}
	}

	return err
}

// fetchSegment downloads one segment under the shared retry policy and
// decrypts it. Failures are per-segment FetchErrors.
func (l *Livestream) fetchSegment(ctx context.Context, req request) ([]byte, error) {
	var data []byte
	var err error

	rangeHeader := req.segment.RangeHeader()
	if rangeHeader != "" {
		data, err = l.client.GetRange(ctx, req.segment.URL, rangeHeader)
	} else {
		data, _, err = l.client.Get(ctx, req.segment.URL)
	}
	if err != nil {
		return nil, &FetchError{URL: req.segment.URL, Err: err}
	}

	plain, err := req.enc.Decrypt(data)
	if err != nil {
		return nil, &FetchError{URL: req.segment.URL, Err: err}
	}

	l.log.Debugf("Downloaded %s %s", req.segment.URL, rangeHeader)
	return plain, nil
}
