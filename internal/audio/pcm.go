// Package audio holds the client-side audio plumbing of a realtime tutoring
// session: the PCM codec, WAV framing, microphone capture and serialized playback.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultSampleRate is the mono sample rate shared by capture, transport and playback.
	DefaultSampleRate = 24000
	// DefaultFrameSize is the number of samples per captured frame.
	DefaultFrameSize = 4096
	// BitDepth is the sample width on the wire.
	BitDepth = 16
)

// Float32ToInt16 converts normalized samples to 16-bit PCM. Each sample is
// clamped to [-1, 1], then scaled by 0x8000 when negative and 0x7FFF otherwise,
// truncating toward zero.
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, v := range samples {
		s := float64(v)
		if math.IsNaN(s) {
			s = 0
		}
		s = math.Max(-1, math.Min(1, s))
		if s < 0 {
			out[i] = int16(s * 0x8000)
		} else {
			out[i] = int16(s * 0x7FFF)
		}
	}
	return out
}

// Int16ToFloat32 is the inverse scaling used when reading s16 sources.
func Int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, v := range samples {
		out[i] = int16ToUnit(v)
	}
	return out
}

func int16ToUnit(v int16) float32 {
	if v < 0 {
		return float32(v) / 0x8000
	}
	return float32(v) / 0x7FFF
}

// Int16ToBytes packs samples little-endian.
func Int16ToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// BytesToInt16 unpacks little-endian samples. A trailing odd byte is ignored.
func BytesToInt16(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// EncodeFrame runs the full capture transform: Float32 -> Int16 -> bytes -> base64.
func EncodeFrame(samples []float32) string {
	return base64.StdEncoding.EncodeToString(Int16ToBytes(Float32ToInt16(samples)))
}

// DecodeChunk reverses the transport encoding of an audio delta.
func DecodeChunk(b64 string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("audio: decode base64 chunk: %w", err)
	}
	return data, nil
}

// Duration returns the playback length of n bytes of mono PCM16 at sampleRate.
func Duration(n int, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := n / (BitDepth / 8)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
