// Package hook runs an optional Lua script over backend notifications.
//
// A hook script may define two global functions:
//
//	function on_event(name, data) ... end  -- structured events
//	function on_log(line) ... end          -- raw log lines
//
// Returning false drops the notification; any other result, including no
// result, forwards it. Event data arrives as Lua values decoded from the
// event's JSON. Scripts run with the base, table, string and math libraries
// only, and may call voxdesk.log(msg) to write to the application log.
package hook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/voxdesk/internal/bridge"
	"github.com/dshills/voxdesk/internal/logging"
)

// DefaultTimeout bounds a single hook invocation.
const DefaultTimeout = time.Second

// Hook function names looked up in the script's globals.
const (
	EventFunc = "on_event"
	LogFunc   = "on_log"
)

var (
	// ErrClosed is returned when using a closed script.
	ErrClosed = errors.New("hook script closed")
)

// Script is a loaded hook script. It is safe for concurrent use; calls are
// serialized because a Lua state is single-threaded.
type Script struct {
	mu      sync.Mutex
	L       *lua.LState
	timeout time.Duration
	log     *logging.Logger
	closed  bool
}

// Option configures a Script.
type Option func(*Script)

// WithTimeout sets the per-call time limit.
func WithTimeout(d time.Duration) Option {
	return func(s *Script) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger used by voxdesk.log.
func WithLogger(log *logging.Logger) Option {
	return func(s *Script) {
		if log != nil {
			s.log = log
		}
	}
}

func newScript(opts ...Option) *Script {
	s := &Script{
		timeout: DefaultTimeout,
		log:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}

	mod := L.NewTable()
	L.SetField(mod, "log", L.NewFunction(func(L *lua.LState) int {
		s.log.Info("%s", L.CheckString(1))
		return 0
	}))
	L.SetGlobal("voxdesk", mod)

	s.L = L
	return s
}

// Load reads and runs the hook script at path.
func Load(path string, opts ...Option) (*Script, error) {
	s := newScript(opts...)
	if err := s.run(func() error { return s.L.DoFile(path) }); err != nil {
		s.L.Close()
		return nil, fmt.Errorf("loading hook %s: %w", path, err)
	}
	return s, nil
}

// LoadString runs src as a hook script.
func LoadString(src string, opts ...Option) (*Script, error) {
	s := newScript(opts...)
	if err := s.run(func() error { return s.L.DoString(src) }); err != nil {
		s.L.Close()
		return nil, fmt.Errorf("loading hook: %w", err)
	}
	return s, nil
}

// run executes fn under the per-call timeout with panic recovery. The
// caller must hold mu or own the state exclusively.
func (s *Script) run(fn func() error) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	s.L.SetContext(ctx)
	defer func() {
		s.L.RemoveContext()
		cancel()
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// Filter runs the matching hook for n and reports whether n should be
// forwarded. Config notifications are always forwarded.
func (s *Script) Filter(n bridge.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true, ErrClosed
	}

	var (
		name string
		args []lua.LValue
	)
	switch n.Channel {
	case bridge.ChannelEvent:
		name = EventFunc
		args = []lua.LValue{lua.LString(n.Event.Name), jsonToLua(s.L, n.Event.Data)}
	case bridge.ChannelLog:
		name = LogFunc
		args = []lua.LValue{lua.LString(n.Line)}
	default:
		return true, nil
	}

	fn, ok := s.L.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return true, nil
	}

	var ret lua.LValue = lua.LNil
	err := s.run(func() error {
		if err := s.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
			return err
		}
		ret = s.L.Get(-1)
		s.L.Pop(1)
		return nil
	})
	if err != nil {
		return true, fmt.Errorf("%s: %w", name, err)
	}

	return ret != lua.LFalse, nil
}

// Close releases the Lua state. It is safe to call more than once.
func (s *Script) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.L.Close()
	return nil
}

// jsonToLua converts raw JSON into a Lua value. Empty input is nil.
func jsonToLua(L *lua.LState, raw []byte) lua.LValue {
	if len(raw) == 0 {
		return lua.LNil
	}
	return resultToLua(L, gjson.ParseBytes(raw))
}

func resultToLua(L *lua.LState, r gjson.Result) lua.LValue {
	switch r.Type {
	case gjson.Null:
		return lua.LNil
	case gjson.False:
		return lua.LFalse
	case gjson.True:
		return lua.LTrue
	case gjson.Number:
		return lua.LNumber(r.Num)
	case gjson.String:
		return lua.LString(r.Str)
	}

	t := L.NewTable()
	switch {
	case r.IsArray():
		i := 1
		r.ForEach(func(_, v gjson.Result) bool {
			t.RawSetInt(i, resultToLua(L, v))
			i++
			return true
		})
	case r.IsObject():
		r.ForEach(func(k, v gjson.Result) bool {
			t.RawSetString(k.Str, resultToLua(L, v))
			return true
		})
	}
	return t
}
