package mux

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"hlsgrab/internal/logger"
	"hlsgrab/internal/models"
)

// DefaultTarget is the remuxed file name when the caller gives none.
const DefaultTarget = "capture.mp4"

// Remux reassembles the captured segment files into one output container
// using ffmpeg stream copy (no transcode). Requires ffmpeg in PATH.
//
// Each stream's files are sorted by segment ordering key and fed to ffmpeg
// through a concat list; the prepend invariant of the writer guarantees every
// listed file is self-contained.
func Remux(ctx context.Context, manifest models.Manifest, outputDir, target string, log logger.Logger) error {
	if target == "" {
		target = DefaultTarget
	}

	args := []string{"-y"}
	var lists []string
	defer func() {
		for _, l := range lists {
			os.Remove(l)
		}
	}()

	for _, stream := range orderedStreams(manifest) {
		files := sortedFiles(manifest[stream])
		if len(files) == 0 {
			continue
		}

		listPath := filepath.Join(outputDir, fmt.Sprintf("concat_%s.txt", stream))
		if err := writeConcatList(listPath, files); err != nil {
			return err
		}
		lists = append(lists, listPath)

		args = append(args, "-f", "concat", "-safe", "0", "-i", listPath)
	}

	if len(lists) == 0 {
		log.Warnf("No segments captured, skipping remux")
		return nil
	}

	for i := range lists {
		args = append(args, "-map", strconv.Itoa(i))
	}
	outPath := filepath.Join(outputDir, target)
	args = append(args, "-c", "copy", outPath)

	log.Infof("Remuxing %d stream(s) into %s", len(lists), outPath)
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

// orderedStreams returns the manifest's streams with Main first and the rest
// sorted by display name, so input ordering is stable across runs.
func orderedStreams(manifest models.Manifest) []models.Stream {
	streams := make([]models.Stream, 0, len(manifest))
	for s := range manifest {
		streams = append(streams, s)
	}
	sort.Slice(streams, func(i, j int) bool {
		if (streams[i].Kind == models.StreamMain) != (streams[j].Kind == models.StreamMain) {
			return streams[i].Kind == models.StreamMain
		}
		return streams[i].String() < streams[j].String()
	})
	return streams
}

// sortedFiles returns files sorted by segment ordering key.
func sortedFiles(files []models.SegmentFile) []models.SegmentFile {
	sorted := make([]models.SegmentFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[j].Segment.Key().After(sorted[i].Segment.Key())
	})
	return sorted
}

// writeConcatList writes an ffmpeg concat demuxer list with absolute paths,
// escaping single quotes per the concat file syntax.
func writeConcatList(path string, files []models.SegmentFile) error {
	var b strings.Builder
	for _, f := range files {
		abs, err := filepath.Abs(f.Path)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
