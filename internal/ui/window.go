// Package ui is the voxdesk terminal window.
//
// The window shows backend notifications in a scrolling pane above a status
// line and a one-line command prompt. It implements bridge.Emitter, so any
// goroutine may feed it notifications; rendering happens on the goroutine
// running Run.
package ui

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/voxdesk/internal/bridge"
)

// WindowEvent is a window lifecycle event.
type WindowEvent int

const (
	// WindowCreated fires once the screen is initialized.
	WindowCreated WindowEvent = iota
	// WindowDestroyed fires once when the window closes.
	WindowDestroyed
)

// String returns the event name.
func (e WindowEvent) String() string {
	switch e {
	case WindowCreated:
		return "created"
	case WindowDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// ErrWindowClosed is returned by Run on a window that has already run.
var ErrWindowClosed = errors.New("window closed")

// Options configures a Window.
type Options struct {
	// Title is shown at the start of the status line.
	Title string
	// Scrollback is the number of notification lines kept.
	Scrollback int
}

// DefaultOptions returns the default window options.
func DefaultOptions() Options {
	return Options{
		Title:      "voxdesk",
		Scrollback: 1000,
	}
}

type entry struct {
	text  string
	style tcell.Style
}

// closeRequest is posted to the event loop by Close.
type closeRequest struct{}

// Window is a terminal window bound to a tcell.Screen.
type Window struct {
	screen tcell.Screen
	opts   Options

	mu     sync.Mutex
	lines  []entry
	status string
	prompt []rune
	scroll int

	onCommand   func(args []string)
	onLifecycle func(WindowEvent)

	started   atomic.Bool
	running   atomic.Bool
	closing   atomic.Bool
	destroyed sync.Once
	done      chan struct{}
}

// NewWindow returns a window drawing on screen. The screen is initialized
// by Run and finalized when Run returns.
func NewWindow(screen tcell.Screen, opts Options) *Window {
	def := DefaultOptions()
	if opts.Title == "" {
		opts.Title = def.Title
	}
	if opts.Scrollback <= 0 {
		opts.Scrollback = def.Scrollback
	}
	return &Window{
		screen: screen,
		opts:   opts,
		done:   make(chan struct{}),
	}
}

// OnCommand sets the handler for submitted prompt lines. The handler runs
// on its own goroutine with the line split on whitespace.
func (w *Window) OnCommand(fn func(args []string)) {
	w.mu.Lock()
	w.onCommand = fn
	w.mu.Unlock()
}

// OnLifecycle sets the lifecycle handler. It is called on the Run goroutine.
func (w *Window) OnLifecycle(fn func(WindowEvent)) {
	w.mu.Lock()
	w.onLifecycle = fn
	w.mu.Unlock()
}

// Emit implements bridge.Emitter by appending n to the pane.
func (w *Window) Emit(n bridge.Notification) error {
	style := tcell.StyleDefault
	switch n.Channel {
	case bridge.ChannelEvent:
		style = style.Bold(true)
	case bridge.ChannelLog:
		style = style.Dim(true)
	case bridge.ChannelConfig:
		style = style.Foreground(tcell.ColorYellow)
	}
	w.Append(n.String(), style)
	return nil
}

// Append adds a line to the pane with the given style.
func (w *Window) Append(text string, style tcell.Style) {
	w.mu.Lock()
	w.lines = append(w.lines, entry{text: sanitize(text), style: style})
	if over := len(w.lines) - w.opts.Scrollback; over > 0 {
		w.lines = append(w.lines[:0:0], w.lines[over:]...)
	}
	w.mu.Unlock()
	w.wake(nil)
}

// SetStatus replaces the status line text.
func (w *Window) SetStatus(status string) {
	w.mu.Lock()
	w.status = status
	w.mu.Unlock()
	w.wake(nil)
}

// Lines returns the text of every line in the pane, oldest first.
func (w *Window) Lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]string, len(w.lines))
	for i, l := range w.lines {
		out[i] = l.text
	}
	return out
}

// Done is closed once Run has returned.
func (w *Window) Done() <-chan struct{} {
	return w.done
}

// Close asks the event loop to exit. It is safe to call from any goroutine
// and more than once.
func (w *Window) Close() {
	w.closing.Store(true)
	w.wake(closeRequest{})
}

// wake nudges the event loop to redraw.
func (w *Window) wake(data any) {
	if !w.running.Load() {
		return
	}
	_ = w.screen.PostEvent(tcell.NewEventInterrupt(data)) // a full queue redraws anyway
}

// Run initializes the screen and processes input until the window is
// closed with Esc, Ctrl-C, or Close. WindowDestroyed fires exactly once
// before Run returns.
func (w *Window) Run() error {
	if w.started.Swap(true) {
		return ErrWindowClosed
	}
	defer close(w.done)

	if err := w.screen.Init(); err != nil {
		w.destroy()
		return err
	}
	w.screen.Clear()
	w.running.Store(true)

	w.fire(WindowCreated)
	w.draw()

	for !w.closing.Load() {
		ev := w.screen.PollEvent()
		if ev == nil {
			break
		}

		switch ev := ev.(type) {
		case *tcell.EventResize:
			w.screen.Sync()
		case *tcell.EventKey:
			w.handleKey(ev)
		case *tcell.EventInterrupt:
			if _, ok := ev.Data().(closeRequest); ok {
				w.closing.Store(true)
			}
		}

		if !w.closing.Load() {
			w.draw()
		}
	}

	w.running.Store(false)
	w.screen.Fini()
	w.destroy()
	return nil
}

func (w *Window) destroy() {
	w.destroyed.Do(func() {
		w.closing.Store(true)
		w.fire(WindowDestroyed)
	})
}

func (w *Window) fire(ev WindowEvent) {
	w.mu.Lock()
	fn := w.onLifecycle
	w.mu.Unlock()

	if fn != nil {
		fn(ev)
	}
}

func (w *Window) handleKey(ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		w.closing.Store(true)

	case tcell.KeyEnter:
		w.submit()

	case tcell.KeyBackspace, tcell.KeyBackspace2:
		w.mu.Lock()
		if n := len(w.prompt); n > 0 {
			w.prompt = w.prompt[:n-1]
		}
		w.mu.Unlock()

	case tcell.KeyCtrlU:
		w.mu.Lock()
		w.prompt = w.prompt[:0]
		w.mu.Unlock()

	case tcell.KeyPgUp:
		w.scrollBy(w.pageSize())
	case tcell.KeyPgDn:
		w.scrollBy(-w.pageSize())
	case tcell.KeyUp:
		w.scrollBy(1)
	case tcell.KeyDown:
		w.scrollBy(-1)
	case tcell.KeyEnd:
		w.mu.Lock()
		w.scroll = 0
		w.mu.Unlock()

	case tcell.KeyRune:
		w.mu.Lock()
		w.prompt = append(w.prompt, ev.Rune())
		w.mu.Unlock()
	}
}

// submit clears the prompt, echoes it, and hands it to the command handler.
func (w *Window) submit() {
	w.mu.Lock()
	line := strings.TrimSpace(string(w.prompt))
	w.prompt = w.prompt[:0]
	w.scroll = 0
	fn := w.onCommand
	w.mu.Unlock()

	args := strings.Fields(line)
	if len(args) == 0 {
		return
	}

	w.Append("> "+line, tcell.StyleDefault.Foreground(tcell.ColorTeal))
	if fn != nil {
		go fn(args)
	}
}

func (w *Window) pageSize() int {
	_, h := w.screen.Size()
	if h -= 3; h < 1 {
		return 1
	}
	return h
}

func (w *Window) scrollBy(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.scroll += n
	if limit := len(w.lines) - 1; w.scroll > limit {
		w.scroll = limit
	}
	if w.scroll < 0 {
		w.scroll = 0
	}
}

// sanitize replaces tabs and strips other control characters so a line
// occupies predictable cells.
func sanitize(s string) string {
	if !strings.ContainsFunc(s, isControl) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\t':
			b.WriteString("    ")
		case isControl(r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}
