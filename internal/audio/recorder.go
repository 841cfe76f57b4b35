// Package audio owns the microphone. Device calls run on one dedicated
// goroutine; captured frames are kept at the device's native rate and
// converted only when a recording is handed off.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

var (
	// ErrDeviceUnavailable is returned when the input device cannot be opened.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrEmptyRecording is returned by Stop for recordings shorter than the
	// minimum duration.
	ErrEmptyRecording = errors.New("recording too short")
	// ErrNotCapturing is returned by Stop when no capture is running.
	ErrNotCapturing = errors.New("not capturing")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("recorder closed")
)

// Recording is a finalized capture. Samples are interleaved float32 frames.
type Recording struct {
	Samples    []float32
	SampleRate int
	Channels   int
	StartedAt  time.Time
	Duration   time.Duration
}

// Device describes an input device.
type Device struct {
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

// Recorder captures audio from a named input device into a float32 buffer.
type Recorder struct {
	minDuration time.Duration

	cmds      chan func()
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the worker goroutine.
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu         sync.Mutex // guards the fields below; the data callback appends under it
	buf        []float32
	sampleRate uint32
	channels   uint32
	startedAt  time.Time
	recording  bool
}

// NewRecorder initializes the audio backend. Recordings shorter than
// minDuration are rejected by Stop. Call Close when done.
func NewRecorder(minDuration time.Duration) (*Recorder, error) {
	r := &Recorder{
		minDuration: minDuration,
		cmds:        make(chan func()),
		done:        make(chan struct{}),
	}
	go r.worker()

	err := r.do(func() error {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
			slog.Debug("[Audio] backend", "msg", msg)
		})
		if err != nil {
			return fmt.Errorf("initializing audio context: %w", err)
		}
		r.ctx = ctx
		return nil
	})
	if err != nil {
		r.stopWorker()
		return nil, err
	}
	return r, nil
}

// worker runs every device call so a hung driver blocks only this goroutine.
func (r *Recorder) worker() {
	for {
		select {
		case fn := <-r.cmds:
			fn()
		case <-r.done:
			return
		}
	}
}

func (r *Recorder) do(fn func() error) error {
	errc := make(chan error, 1)
	select {
	case r.cmds <- func() { errc <- fn() }:
	case <-r.done:
		return ErrClosed
	}
	return <-errc
}

// Devices lists the capture devices.
func (r *Recorder) Devices() ([]Device, error) {
	var out []Device
	err := r.do(func() error {
		infos, err := r.ctx.Devices(malgo.Capture)
		if err != nil {
			return fmt.Errorf("enumerating capture devices: %w", err)
		}
		for _, info := range infos {
			out = append(out, Device{Name: info.Name(), IsDefault: info.IsDefault != 0})
		}
		return nil
	})
	return out, err
}

// Start begins capturing from the device called name, or the system default
// when name is empty.
func (r *Recorder) Start(name string) error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return fmt.Errorf("audio: already capturing")
	}
	r.mu.Unlock()

	return r.do(func() error {
		deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
		deviceCfg.Capture.Format = malgo.FormatF32
		// Zero channels and rate select the device's native format.
		deviceCfg.Capture.Channels = 0
		deviceCfg.SampleRate = 0

		if name != "" {
			infos, err := r.ctx.Devices(malgo.Capture)
			if err != nil {
				return fmt.Errorf("audio: enumerate devices: %v: %w", err, ErrDeviceUnavailable)
			}
			found := false
			for i := range infos {
				if infos[i].Name() == name {
					deviceCfg.Capture.DeviceID = infos[i].ID.Pointer()
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("audio: device %q not found: %w", name, ErrDeviceUnavailable)
			}
		}

		device, err := malgo.InitDevice(r.ctx.Context, deviceCfg, malgo.DeviceCallbacks{Data: r.onData})
		if err != nil {
			return fmt.Errorf("audio: init capture device: %v: %w", err, ErrDeviceUnavailable)
		}

		r.mu.Lock()
		r.buf = r.buf[:0]
		r.sampleRate = device.SampleRate()
		r.channels = device.CaptureChannels()
		r.startedAt = time.Now()
		r.recording = true
		r.mu.Unlock()

		if err := device.Start(); err != nil {
			device.Uninit()
			r.mu.Lock()
			r.recording = false
			r.mu.Unlock()
			return fmt.Errorf("audio: start capture device: %v: %w", err, ErrDeviceUnavailable)
		}

		r.device = device
		slog.Debug("[Audio] capture started", "device", name, "rate", r.sampleRate, "channels", r.channels)
		return nil
	})
}

// Stop ends the capture and returns the recording. Ownership of the samples
// passes to the caller.
func (r *Recorder) Stop() (*Recording, error) {
	var rec *Recording
	err := r.do(func() error {
		r.releaseDevice()

		r.mu.Lock()
		defer r.mu.Unlock()
		if !r.recording {
			return ErrNotCapturing
		}
		r.recording = false

		samples := make([]float32, len(r.buf))
		copy(samples, r.buf)
		r.buf = r.buf[:0]

		rec = &Recording{
			Samples:    samples,
			SampleRate: int(r.sampleRate),
			Channels:   int(r.channels),
			StartedAt:  r.startedAt,
			Duration:   samplesDuration(len(samples), int(r.sampleRate), int(r.channels)),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if rec.Duration < r.minDuration {
		return nil, fmt.Errorf("audio: %s captured, minimum %s: %w",
			rec.Duration.Round(time.Millisecond), r.minDuration, ErrEmptyRecording)
	}
	return rec, nil
}

// Abort discards any in-progress capture.
func (r *Recorder) Abort() {
	_ = r.do(func() error {
		r.releaseDevice()
		r.mu.Lock()
		r.recording = false
		r.buf = r.buf[:0]
		r.mu.Unlock()
		return nil
	})
}

// IsRecording returns whether the recorder is currently capturing audio.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Close releases all audio resources.
func (r *Recorder) Close() error {
	err := r.do(func() error {
		r.releaseDevice()
		r.mu.Lock()
		r.recording = false
		r.mu.Unlock()

		if r.ctx != nil {
			if err := r.ctx.Uninit(); err != nil {
				return fmt.Errorf("uninitializing audio context: %w", err)
			}
			r.ctx.Free()
			r.ctx = nil
		}
		return nil
	})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	r.stopWorker()
	return err
}

func (r *Recorder) stopWorker() {
	r.closeOnce.Do(func() { close(r.done) })
}

// releaseDevice must run on the worker goroutine.
func (r *Recorder) releaseDevice() {
	if r.device != nil {
		r.device.Uninit()
		r.device = nil
	}
}

// onData is the malgo callback invoked when audio data is available.
// pSample contains the captured frames as little-endian float32.
func (r *Recorder) onData(_, pSample []byte, frameCount uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	r.buf = appendFloat32(r.buf, pSample, frameCount*r.channels)
}

// appendFloat32 decodes little-endian float32 samples onto dst.
func appendFloat32(dst []float32, data []byte, sampleCount uint32) []float32 {
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		dst = append(dst, math.Float32frombits(bits))
	}
	return dst
}

func samplesDuration(n, rate, channels int) time.Duration {
	if rate <= 0 || channels <= 0 {
		return 0
	}
	frames := n / channels
	return time.Duration(frames) * time.Second / time.Duration(rate)
}
