package client

import (
	"bytes"
	"sync"
	"time"

	"chatlink-backend/pkg/constants"
	"chatlink-backend/pkg/errors"
)

// Recording is a finished voice capture ready for upload
type Recording struct {
	Data []byte
	// Duration in seconds, measured wall-clock from Start to Stop
	Duration float64
}

// Recorder accumulates audio chunks pushed by the capture layer and enforces
// the maximum duration: when the limit is hit the recording auto-stops and
// the OnAutoStop callback receives the finished buffer.
type Recorder struct {
	maxDuration time.Duration

	// OnAutoStop is invoked when the duration limit stops the recording.
	// Runs on the timer goroutine.
	OnAutoStop func(rec *Recording)

	mu        sync.Mutex
	recording bool
	startedAt time.Time
	buf       bytes.Buffer
	limit     *time.Timer

	now func() time.Time
}

// NewRecorder creates a recorder; maxDuration <= 0 uses the default limit
func NewRecorder(maxDuration time.Duration) *Recorder {
	if maxDuration <= 0 {
		maxDuration = constants.DefaultMaxVoiceDuration
	}
	return &Recorder{
		maxDuration: maxDuration,
		now:         time.Now,
	}
}

// Start begins a capture; an already-running capture is an error
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return errors.ConflictError("recording already in progress")
	}

	r.recording = true
	r.startedAt = r.now()
	r.buf.Reset()
	r.limit = time.AfterFunc(r.maxDuration, r.autoStop)
	return nil
}

// Write appends a captured audio chunk; chunks after stop are dropped
func (r *Recorder) Write(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	r.buf.Write(chunk)
}

// Stop finishes the capture and returns the buffer with its measured duration
func (r *Recorder) Stop() (*Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked()
}

// Cancel discards the buffer without producing a recording
func (r *Recorder) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return
	}
	r.recording = false
	r.limit.Stop()
	r.buf.Reset()
}

// Recording reports whether a capture is in progress
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *Recorder) stopLocked() (*Recording, error) {
	if !r.recording {
		return nil, errors.ValidationError("no recording in progress")
	}

	r.recording = false
	r.limit.Stop()

	elapsed := r.now().Sub(r.startedAt)
	if elapsed > r.maxDuration {
		elapsed = r.maxDuration
	}

	data := make([]byte, r.buf.Len())
	copy(data, r.buf.Bytes())
	r.buf.Reset()

	return &Recording{Data: data, Duration: elapsed.Seconds()}, nil
}

func (r *Recorder) autoStop() {
	r.mu.Lock()
	rec, err := r.stopLocked()
	r.mu.Unlock()

	if err == nil && r.OnAutoStop != nil {
		r.OnAutoStop(rec)
	}
}
