package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const wavHeaderSize = 44

var ErrNotWav = errors.New("not a RIFF/WAVE payload")

// Format describes a PCM stream.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// NewWavBuffer wraps 16-bit mono PCM in a canonical WAV header.
func NewWavBuffer(pcm []byte, sampleRate int) []byte {
	return EncodeWav(pcm, Format{SampleRate: sampleRate, Channels: 1, BitsPerSample: 16})
}

func EncodeWav(pcm []byte, f Format) []byte {
	blockAlign := f.Channels * f.BitsPerSample / 8
	buf := new(bytes.Buffer)
	buf.Grow(wavHeaderSize + len(pcm))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(f.Channels))
	binary.Write(buf, binary.LittleEndian, uint32(f.SampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(f.SampleRate*blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(f.BitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// DecodeWav walks the RIFF chunks and returns the PCM format and data.
func DecodeWav(data []byte) (Format, []byte, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Format{}, nil, ErrNotWav
	}

	var (
		f       Format
		haveFmt bool
	)
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(data) || end < body {
			end = len(data)
		}
		// Streaming encoders write 0 or 0xFFFFFFFF as the data size.
		if id == "data" && size == 0 {
			end = len(data)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return Format{}, nil, fmt.Errorf("wav: short fmt chunk (%d bytes)", end-body)
			}
			if codec := binary.LittleEndian.Uint16(data[body : body+2]); codec != 1 {
				return Format{}, nil, fmt.Errorf("wav: unsupported codec %d", codec)
			}
			f.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			f.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return Format{}, nil, errors.New("wav: data chunk before fmt chunk")
			}
			return f, data[body:end], nil
		}

		pos = end
		if size%2 == 1 {
			pos++
		}
	}
	return Format{}, nil, errors.New("wav: no data chunk")
}

// IsWav reports whether payload looks like playable WAV audio of at least
// minBytes. JSON error bodies served as audio fail this check.
func IsWav(payload []byte, minBytes int) bool {
	if minBytes < wavHeaderSize {
		minBytes = wavHeaderSize
	}
	if len(payload) < minBytes {
		return false
	}
	_, pcm, err := DecodeWav(payload)
	return err == nil && len(pcm) > 0
}
