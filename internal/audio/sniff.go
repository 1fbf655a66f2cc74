// Package audio inspects uploaded audio payloads before they are shipped to
// the media host. Detection is magic-byte based; the declared Content-Type of
// a multipart part is advisory at best.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// Format is a detected audio container.
type Format string

const (
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatOgg     Format = "ogg"
	FormatWebM    Format = "webm"
	FormatUnknown Format = ""
)

var ErrUnrecognized = errors.New("unrecognized audio container")

// DetectFormat sniffs the container from the first bytes of the payload.
func DetectFormat(data []byte) Format {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte("OggS")):
		return FormatOgg
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		// EBML header; webm shares it with mkv, which is close enough for an allowlist.
		return FormatWebM
	case len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && (data[1]&0xE0) == 0xE0:
		// Bare MPEG frame sync, common for ID3-less mp3 recordings.
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// WAVInfo describes the fmt chunk of a WAV payload.
type WAVInfo struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
	DataBytes     int
}

// ReadWAVInfo parses the RIFF/fmt/data layout of a WAV payload. Chunks other
// than fmt and data are skipped.
func ReadWAVInfo(data []byte) (WAVInfo, error) {
	if DetectFormat(data) != FormatWAV {
		return WAVInfo{}, ErrUnrecognized
	}

	info := WAVInfo{}
	off := 12
	sawFmt := false
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			break
		}
		switch id {
		case "fmt ":
			if size >= 16 {
				info.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
				info.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
				sawFmt = true
			}
		case "data":
			info.DataBytes = size
		}
		// Chunks are word-aligned.
		if size%2 == 1 {
			size++
		}
		off = body + size
	}

	if !sawFmt {
		return WAVInfo{}, errors.New("wav payload missing fmt chunk")
	}
	return info, nil
}
