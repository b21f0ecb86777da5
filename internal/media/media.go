package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bogem/id3v2"
	"github.com/go-audio/wav"
	"github.com/tphakala/flac"

	"github.com/dshills/audiomark-mcp/pkg/types"
)

// Format names reported in Info.Format
const (
	FormatWAV  = "wav"
	FormatFLAC = "flac"
	FormatMP3  = "mp3"
	FormatMIDI = "midi"
	FormatOGG  = "ogg"
)

// Info describes an audio file
type Info struct {
	Format          string
	Duration        time.Duration // Zero when the format does not expose it
	SampleRate      int
	Channels        int
	BitDepth        int
	Title           string
	Artist          string
	NeedsConversion bool // Must be converted before playback
}

// DurationMs returns the duration in milliseconds
func (i *Info) DurationMs() float64 {
	return float64(i.Duration) / float64(time.Millisecond)
}

// conversionFormats maps suffixes that players cannot open directly
var conversionFormats = map[string]string{
	".mid":  FormatMIDI,
	".midi": FormatMIDI,
	".ogg":  FormatOGG,
}

// Probe opens the file at path and reads what its format exposes.
// A missing file is ErrNotFound; a file that cannot be decoded is ErrUnsupportedMedia.
func Probe(path string) (*Info, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", types.ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: open %s: %w", types.ErrIO, path, err)
	}
	defer func() { _ = file.Close() }()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".wav", ".wave":
		return probeWAV(file)
	case ".flac":
		return probeFLAC(file)
	case ".mp3":
		return probeMP3(path, file)
	}
	if format, ok := conversionFormats[ext]; ok {
		return &Info{Format: format, NeedsConversion: true}, nil
	}
	return nil, fmt.Errorf("%w: unknown audio format %q", types.ErrUnsupportedMedia, ext)
}

// NeedsConversion reports whether files with this name must be converted before playback
func NeedsConversion(path string) bool {
	_, ok := conversionFormats[strings.ToLower(filepath.Ext(path))]
	return ok
}

func probeWAV(file *os.File) (*Info, error) {
	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid WAV file format", types.ErrUnsupportedMedia)
	}

	if err := decoder.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%w: locate WAV data chunk: %w", types.ErrUnsupportedMedia, err)
	}
	var duration time.Duration
	bytesPerSecond := int64(decoder.SampleRate) * int64(decoder.NumChans) * int64(decoder.BitDepth/8)
	if bytesPerSecond > 0 {
		duration = time.Duration(float64(decoder.PCMLen()) / float64(bytesPerSecond) * float64(time.Second))
	}

	return &Info{
		Format:     FormatWAV,
		Duration:   duration,
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
		BitDepth:   int(decoder.BitDepth),
	}, nil
}

func probeFLAC(file *os.File) (*Info, error) {
	decoder, err := flac.NewDecoder(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrUnsupportedMedia, err)
	}

	info := &Info{
		Format:     FormatFLAC,
		SampleRate: decoder.SampleRate,
		Channels:   decoder.NChannels,
		BitDepth:   decoder.BitsPerSample,
	}
	if decoder.SampleRate > 0 {
		info.Duration = time.Duration(float64(decoder.TotalSamples) / float64(decoder.SampleRate) * float64(time.Second))
	}
	return info, nil
}

// probeMP3 reads ID3v2 tags only; MP3 frames are left to the player
func probeMP3(path string, file *os.File) (*Info, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, fmt.Errorf("%w: read ID3 tag: %w", types.ErrUnsupportedMedia, err)
	}
	defer func() { _ = tag.Close() }()

	if !tag.HasFrames() {
		// Untagged files are still valid when they start with an MPEG frame sync
		header := make([]byte, 2)
		if _, err := io.ReadFull(file, header); err != nil || header[0] != 0xFF || header[1]&0xE0 != 0xE0 {
			return nil, fmt.Errorf("%w: no ID3 tag or MPEG frame header", types.ErrUnsupportedMedia)
		}
	}

	return &Info{
		Format: FormatMP3,
		Title:  tag.Title(),
		Artist: tag.Artist(),
	}, nil
}
