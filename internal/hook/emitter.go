package hook

import (
	"github.com/dshills/voxdesk/internal/bridge"
	"github.com/dshills/voxdesk/internal/logging"
)

// Emitter passes notifications through a Script before forwarding them.
// A failing hook never drops a notification.
type Emitter struct {
	script *Script
	next   bridge.Emitter
	log    *logging.Logger
}

// NewEmitter wraps next with script.
func NewEmitter(script *Script, next bridge.Emitter, log *logging.Logger) *Emitter {
	if log == nil {
		log = logging.Nop()
	}
	return &Emitter{script: script, next: next, log: log}
}

// Emit implements bridge.Emitter.
func (e *Emitter) Emit(n bridge.Notification) error {
	keep, err := e.script.Filter(n)
	if err != nil {
		e.log.Warn("hook failed on %s: %v", n.Channel, err)
		keep = true
	}
	if !keep {
		return nil
	}
	return e.next.Emit(n)
}
