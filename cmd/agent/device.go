package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/XitingXie/partner/pkg/audio"
	"github.com/XitingXie/partner/pkg/orchestrator"
)

// captureMic streams mono 16-bit frames from the default capture device.
// Only one Open may be active at a time.
type captureMic struct {
	mctx       *malgo.AllocatedContext
	sampleRate int
	logger     orchestrator.Logger

	mu     sync.Mutex
	device *malgo.Device
	frames chan []byte
}

func newCaptureMic(mctx *malgo.AllocatedContext, sampleRate int, logger orchestrator.Logger) *captureMic {
	return &captureMic{mctx: mctx, sampleRate: sampleRate, logger: logger}
}

func (m *captureMic) Open(ctx context.Context) (<-chan []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		return nil, orchestrator.ErrDeviceBusy
	}

	frames := make(chan []byte, 128)
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(m.sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	onSamples := func(pOutput, pInput []byte, frameCount uint32) {
		if len(pInput) == 0 {
			return
		}
		frame := make([]byte, len(pInput))
		copy(frame, pInput)
		select {
		case frames <- frame:
		default:
			// drop when the reader falls behind
		}
	}

	device, err := malgo.InitDevice(m.mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", orchestrator.ErrDeviceBusy, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("%w: %w", orchestrator.ErrDeviceBusy, err)
	}
	m.device = device
	m.frames = frames
	m.logger.Debug("microphone opened", "sampleRate", m.sampleRate)
	return frames, nil
}

func (m *captureMic) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return nil
	}
	m.device.Uninit()
	close(m.frames)
	m.device = nil
	m.frames = nil
	return nil
}

// devicePlayer plays 16-bit PCM WAV files on the default output device.
type devicePlayer struct {
	mctx *malgo.AllocatedContext
}

func newDevicePlayer(mctx *malgo.AllocatedContext) *devicePlayer {
	return &devicePlayer{mctx: mctx}
}

func (p *devicePlayer) Play(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	format, pcm, err := audio.DecodeWav(data)
	if err != nil {
		return err
	}
	if format.BitsPerSample != 16 {
		return fmt.Errorf("unsupported sample width %d", format.BitsPerSample)
	}

	var (
		mu       sync.Mutex
		finished = make(chan struct{})
		once     sync.Once
	)
	onSamples := func(pOutput, pInput []byte, frameCount uint32) {
		mu.Lock()
		n := copy(pOutput, pcm)
		pcm = pcm[n:]
		remaining := len(pcm)
		mu.Unlock()
		for i := n; i < len(pOutput); i++ {
			pOutput[i] = 0
		}
		if remaining == 0 {
			once.Do(func() { close(finished) })
		}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(p.mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		return err
	}
	defer device.Uninit()
	if err := device.Start(); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// devicePermissions treats a visible capture device as granted access.
type devicePermissions struct {
	mctx *malgo.AllocatedContext
}

func (d devicePermissions) MicrophoneAuthorized() bool {
	devices, err := d.mctx.Devices(malgo.Capture)
	return err == nil && len(devices) > 0
}
