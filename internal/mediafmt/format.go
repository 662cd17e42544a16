package mediafmt

import (
	"bytes"
	"fmt"
)

// Format classifies the container of a decrypted media segment.
type Format int

const (
	// Unknown is the zero value, before detection has run.
	Unknown Format = iota
	// MpegTS is an MPEG transport stream segment.
	MpegTS
	// FragmentedMP4 is an ISO BMFF (fMP4) segment.
	FragmentedMP4
	// WebVTT is a text subtitle segment.
	WebVTT
	// AAC is a raw ADTS audio segment.
	AAC
)

const tsPacketSize = 188

// bom is the UTF-8 byte order mark, permitted before the WEBVTT magic.
var bom = []byte{0xef, 0xbb, 0xbf}

// mp4 box types that can open an initialization or media segment.
var mp4Boxes = [][]byte{
	[]byte("ftyp"),
	[]byte("styp"),
	[]byte("moov"),
	[]byte("moof"),
	[]byte("sidx"),
}

// Detect inspects the leading bytes of a segment and classifies its container.
// It returns an error when no known container signature matches.
func Detect(data []byte) (Format, error) {
	if len(data) > tsPacketSize && data[0] == 0x47 && data[tsPacketSize] == 0x47 {
		return MpegTS, nil
	}
	if len(data) >= 8 {
		for _, box := range mp4Boxes {
			if bytes.Equal(data[4:8], box) {
				return FragmentedMP4, nil
			}
		}
	}
	text := bytes.TrimPrefix(data, bom)
	if bytes.HasPrefix(text, []byte("WEBVTT")) {
		return WebVTT, nil
	}
	if len(data) >= 2 && data[0] == 0xff && data[1]&0xf0 == 0xf0 {
		return AAC, nil
	}
	if bytes.HasPrefix(data, []byte("ID3")) {
		return AAC, nil
	}
	return Unknown, fmt.Errorf("unrecognized media container (%d bytes)", len(data))
}

// Extension returns the file extension used when persisting a segment.
func (f Format) Extension() string {
	switch f {
	case MpegTS:
		return "ts"
	case FragmentedMP4:
		return "mp4"
	case WebVTT:
		return "vtt"
	case AAC:
		return "aac"
	default:
		return "bin"
	}
}

// String returns a short name for logging.
func (f Format) String() string {
	switch f {
	case MpegTS:
		return "mpeg-ts"
	case FragmentedMP4:
		return "fmp4"
	case WebVTT:
		return "webvtt"
	case AAC:
		return "aac"
	default:
		return "unknown"
	}
}
