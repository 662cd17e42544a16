package capture

import (
	"fmt"
	"os"
	"path/filepath"

	"hlsgrab/internal/logger"
	"hlsgrab/internal/mediafmt"
	"hlsgrab/internal/metrics"
	"hlsgrab/internal/models"
)

// writer persists completed segments. It is driven by the single consumer
// loop in Download, so the init cache and the manifest need no locking.
type writer struct {
	dir      string
	log      logger.Logger
	met      *metrics.Metrics
	inits    map[models.Stream][]byte
	manifest models.Manifest
}

func newWriter(dir string, log logger.Logger, met *metrics.Metrics) *writer {
	return &writer{
		dir:      dir,
		log:      log,
		met:      met,
		inits:    make(map[models.Stream][]byte),
		manifest: make(models.Manifest),
	}
}

// save handles one decrypted segment. Initialization bytes are cached per
// stream; sequence segments get the cached initialization prepended, so every
// written file is independently decodable, then are classified and written to
// a fresh file whose name sorts in ordering-key order.
func (w *writer) save(stream models.Stream, segment models.Segment, data []byte) error {
	if segment.Kind == models.SegmentInitialization {
		w.inits[stream] = data
		return nil
	}

	if init, ok := w.inits[stream]; ok {
		joined := make([]byte, 0, len(init)+len(data))
		joined = append(joined, init...)
		data = append(joined, data...)
	}

	base := fmt.Sprintf("segment_%s_%s", stream, segment.ID())

	format, err := mediafmt.Detect(data)
	if err != nil {
		return &WriteError{Path: filepath.Join(w.dir, base), Err: err}
	}
	segment.Format = format

	path := filepath.Join(w.dir, fmt.Sprintf("%s.%s", base, format.Extension()))
	w.log.Debugf("Saving %s", path)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &WriteError{Path: path, Err: err}
	}

	w.manifest[stream] = append(w.manifest[stream], models.SegmentFile{Segment: segment, Path: path})
	w.met.IncSegmentsWritten(stream.String())
	w.met.AddBytesWritten(len(data))
	return nil
}

// snapshot returns the manifest accumulated so far.
func (w *writer) snapshot() models.Manifest {
	return w.manifest
}
