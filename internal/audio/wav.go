package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// WAVHeaderSize is the size of the canonical RIFF/WAVE PCM header.
const WAVHeaderSize = 44

// ErrInvalidWAV is returned when a buffer does not carry a PCM WAV header.
var ErrInvalidWAV = errors.New("audio: invalid wav container")

// WAVInfo is the decoded fmt chunk of a WAV buffer.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	DataSize      int
}

// WrapWAV prefixes raw mono PCM16 with a minimal WAV header so generic
// decoders accept it.
func WrapWAV(pcm []byte, sampleRate int) []byte {
	const channels = 1
	byteRate := sampleRate * channels * BitDepth / 8
	blockAlign := channels * BitDepth / 8

	buf := make([]byte, WAVHeaderSize+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], BitDepth)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[WAVHeaderSize:], pcm)
	return buf
}

// ParseWAV validates the header written by WrapWAV and returns the sample data.
func ParseWAV(wav []byte) (WAVInfo, []byte, error) {
	if len(wav) < WAVHeaderSize {
		return WAVInfo{}, nil, fmt.Errorf("%w: %d bytes", ErrInvalidWAV, len(wav))
	}
	if !bytes.Equal(wav[0:4], []byte("RIFF")) || !bytes.Equal(wav[8:12], []byte("WAVE")) {
		return WAVInfo{}, nil, fmt.Errorf("%w: missing RIFF/WAVE tags", ErrInvalidWAV)
	}
	if !bytes.Equal(wav[12:16], []byte("fmt ")) || !bytes.Equal(wav[36:40], []byte("data")) {
		return WAVInfo{}, nil, fmt.Errorf("%w: unexpected chunk layout", ErrInvalidWAV)
	}
	if format := binary.LittleEndian.Uint16(wav[20:22]); format != 1 {
		return WAVInfo{}, nil, fmt.Errorf("%w: format %d is not PCM", ErrInvalidWAV, format)
	}

	info := WAVInfo{
		Channels:      int(binary.LittleEndian.Uint16(wav[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(wav[24:28])),
		BitsPerSample: int(binary.LittleEndian.Uint16(wav[34:36])),
		DataSize:      int(binary.LittleEndian.Uint32(wav[40:44])),
	}
	if info.DataSize > len(wav)-WAVHeaderSize {
		return WAVInfo{}, nil, fmt.Errorf("%w: data chunk truncated", ErrInvalidWAV)
	}
	if info.BitsPerSample == 16 && info.DataSize%2 != 0 {
		return WAVInfo{}, nil, fmt.Errorf("%w: odd byte count for 16-bit samples", ErrInvalidWAV)
	}
	return info, wav[WAVHeaderSize : WAVHeaderSize+info.DataSize], nil
}
