// Package bridge carries backend output to the UI layer.
//
// The backend writes one message per line on stdout. A line holding a JSON
// object of the form {"event": "<name>", "data": <any>} becomes a
// "python-event" notification; every other line becomes a "python-log"
// notification carrying the raw text. Malformed JSON is never an error.
//
// Lines produces the lines lazily, Classify decides what each line is, and
// Forward ties the two to an Emitter:
//
//	stats := bridge.Forward(proc.Stdout, bridge.NewJSONLSink(os.Stdout))
//
// Emitters compose: Multi fans out, Recorder keeps everything for tests,
// and JSONLSink writes envelopes for a host reading JSON lines.
package bridge
