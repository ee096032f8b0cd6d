package bridge

import (
	"errors"
	"io"
	"sync"

	"github.com/tidwall/sjson"
)

// Emitter delivers notifications to the UI layer.
type Emitter interface {
	Emit(n Notification) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(n Notification) error

// Emit calls f(n).
func (f EmitterFunc) Emit(n Notification) error {
	return f(n)
}

// Discard is an Emitter that drops everything.
var Discard Emitter = EmitterFunc(func(Notification) error { return nil })

// Multi fans a notification out to every emitter in order. All emitters are
// called; their errors are joined.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(n Notification) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats counts what a Forward call delivered.
type Stats struct {
	Events int
	Logs   int
	Failed int
}

// Lines returns the number of lines seen.
func (s Stats) Lines() int {
	return s.Events + s.Logs
}

// Forward classifies every line of r and emits it, blocking until r is
// exhausted. Emit failures are counted and otherwise ignored so one
// misbehaving sink cannot stall the backend's output.
func Forward(r io.Reader, e Emitter) Stats {
	var stats Stats
	for line := range Lines(r) {
		n := Classify(line)
		if n.IsEvent() {
			stats.Events++
		} else {
			stats.Logs++
		}
		if err := e.Emit(n); err != nil {
			stats.Failed++
		}
	}
	return stats
}

// Recorder keeps every notification it receives. It is safe for
// concurrent use.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

// Emit implements Emitter.
func (r *Recorder) Emit(n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	return nil
}

// Notifications returns a copy of everything recorded so far.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Channel returns the recorded notifications for one channel.
func (r *Recorder) Channel(channel string) []Notification {
	var out []Notification
	for _, n := range r.Notifications() {
		if n.Channel == channel {
			out = append(out, n)
		}
	}
	return out
}

// Len returns the number of recorded notifications.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// JSONLSink writes each notification as one JSON object per line:
//
//	{"channel":"python-event","event":"status","data":"Downloading video..."}
//	{"channel":"python-log","line":"plain output"}
//
// It is safe for concurrent use.
type JSONLSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONLSink returns a sink writing to w.
func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{w: w}
}

// Emit implements Emitter.
func (s *JSONLSink) Emit(n Notification) error {
	out, err := Envelope(n)
	if err != nil {
		return err
	}
	out = append(out, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(out)
	return err
}

// Envelope encodes n as a single JSON object.
func Envelope(n Notification) ([]byte, error) {
	out, err := sjson.SetBytes([]byte(`{}`), "channel", n.Channel)
	if err != nil {
		return nil, err
	}

	if n.Channel == ChannelEvent {
		out, err = sjson.SetBytes(out, "event", n.Event.Name)
		if err != nil {
			return nil, err
		}
		data := []byte(n.Event.Data)
		if len(data) == 0 {
			data = []byte("null")
		}
		return sjson.SetRawBytes(out, "data", data)
	}

	return sjson.SetBytes(out, "line", n.Line)
}
