package audio

import (
	"fmt"
	"math"
	"os"
)

// WriteTempClip stores a synthesized clip under dir (os.TempDir when empty).
// The caller owns the file and must remove it.
func WriteTempClip(dir string, clip []byte) (string, error) {
	f, err := os.CreateTemp(dir, "speech_*.wav")
	if err != nil {
		return "", fmt.Errorf("create clip file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(clip); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write clip file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close clip file: %w", err)
	}
	return path, nil
}

// RMS returns the normalized root mean square of 16-bit little-endian PCM.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(pcm[i]) | (int16(pcm[i+1]) << 8)
		f := float64(sample) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(n))
}
