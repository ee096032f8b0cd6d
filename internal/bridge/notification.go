package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Notification channel names seen by the UI layer.
const (
	// ChannelEvent carries a structured backend event.
	ChannelEvent = "python-event"

	// ChannelLog carries a raw backend output line.
	ChannelLog = "python-log"

	// ChannelConfig announces that the configuration file was reloaded.
	// Line holds the path of the reloaded file.
	ChannelConfig = "config-reloaded"
)

// Event is a named, data-carrying record emitted by the backend as one line
// of JSON: {"event": "<name>", "data": <any>}.
type Event struct {
	// Name is the event name.
	Name string `json:"event"`

	// Data is the event value, passed through verbatim.
	Data json.RawMessage `json:"data"`
}

// Notification is one message delivered to the UI.
type Notification struct {
	// Channel is ChannelEvent, ChannelLog or ChannelConfig.
	Channel string

	// Event is set for ChannelEvent.
	Event Event

	// Line is set for ChannelLog and ChannelConfig.
	Line string
}

// IsEvent reports whether n carries a structured event.
func (n Notification) IsEvent() bool {
	return n.Channel == ChannelEvent
}

// String renders n for display.
func (n Notification) String() string {
	switch n.Channel {
	case ChannelEvent:
		return fmt.Sprintf("%s %s", n.Event.Name, n.Event.Data)
	case ChannelConfig:
		return "config reloaded: " + n.Line
	default:
		return n.Line
	}
}

// EventNotification returns a ChannelEvent notification.
func EventNotification(name string, data json.RawMessage) Notification {
	return Notification{Channel: ChannelEvent, Event: Event{Name: name, Data: data}}
}

// LogNotification returns a ChannelLog notification.
func LogNotification(line string) Notification {
	return Notification{Channel: ChannelLog, Line: line}
}

// Classify turns one line of backend output into a notification.
//
// A line is an event when it is a single JSON object with exactly one
// "event" member, a string, and exactly one "data" member of any type, null
// included. Unknown members are ignored. Anything else, including empty
// lines, duplicate event or data members, and JSON of another shape, is
// returned verbatim as a log line.
func Classify(line string) Notification {
	if !gjson.Valid(line) {
		return LogNotification(line)
	}

	doc := gjson.Parse(line)
	if !doc.IsObject() {
		return LogNotification(line)
	}

	var (
		name, data   gjson.Result
		names, datas int
	)
	doc.ForEach(func(key, value gjson.Result) bool {
		switch key.Str {
		case "event":
			name = value
			names++
		case "data":
			data = value
			datas++
		}
		return true
	})

	if names != 1 || datas != 1 || name.Type != gjson.String {
		return LogNotification(line)
	}

	return EventNotification(name.Str, json.RawMessage(data.Raw))
}
