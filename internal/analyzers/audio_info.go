package analyzers

import (
	"encoding/binary"
	"fmt"

	"context"

	"github.com/h51assets/h51/internal/domain"
	"github.com/h51assets/h51/internal/registry"
)

// AudioInfoResult is the analyzer output written to meta.audio.audio_info:
// a lightweight probe in the spirit of the original's mutagen-based probe
// (§12), supporting the WAV container directly and degrading gracefully
// for compressed formats it cannot parse without a full decoder.
type AudioInfoResult struct {
	Channels   int     `json:"channels"`
	SampleRate int     `json:"sample_rate"`
	Mode       string  `json:"mode"`
	Length     float64 `json:"length_seconds"`
}

// AudioInfo probes a WAV container's fmt/data chunks for channel count,
// sample rate, and approximate duration.
type AudioInfo struct{}

func NewAudioInfo() *AudioInfo { return &AudioInfo{} }

func (AudioInfo) Name() string                { return "audio_info" }
func (AudioInfo) AssetType() domain.AssetType { return domain.AssetTypeAudio }
func (AudioInfo) Schema() registry.Schema     { return nil }

func (AudioInfo) Analyze(_ context.Context, _ map[string]any, _ *domain.Asset, blob []byte, _ []registry.AnalyzerCall) (any, error) {
	info, err := probeWAV(blob)
	if err != nil {
		// Not a parseable WAV (e.g. MP3): report an unknown-mode stub
		// rather than failing the whole analyzer pipeline.
		return AudioInfoResult{Mode: "unknown"}, nil
	}
	return info, nil
}

func probeWAV(b []byte) (AudioInfoResult, error) {
	if len(b) < 44 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return AudioInfoResult{}, fmt.Errorf("not a WAV container")
	}
	offset := 12
	var channels, sampleRate, bitsPerSample int
	var dataBytes int
	for offset+8 <= len(b) {
		chunkID := string(b[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(b[offset+4 : offset+8]))
		body := offset + 8
		if chunkID == "fmt " && body+16 <= len(b) {
			channels = int(binary.LittleEndian.Uint16(b[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(b[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(b[body+14 : body+16]))
		}
		if chunkID == "data" {
			dataBytes = chunkSize
		}
		offset = body + chunkSize
		if chunkSize%2 == 1 {
			offset++
		}
	}
	if channels == 0 || sampleRate == 0 {
		return AudioInfoResult{}, fmt.Errorf("missing fmt chunk")
	}
	var length float64
	if bitsPerSample > 0 {
		bytesPerSec := sampleRate * channels * (bitsPerSample / 8)
		if bytesPerSec > 0 {
			length = float64(dataBytes) / float64(bytesPerSec)
		}
	}
	mode := "mono"
	if channels > 1 {
		mode = "stereo"
	}
	return AudioInfoResult{Channels: channels, SampleRate: sampleRate, Mode: mode, Length: length}, nil
}
