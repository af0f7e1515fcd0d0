package models

// CapgKeyHeader carries the API credential on every events request.
const CapgKeyHeader = "capgkey"

// EventPayload is the body POSTed to /private/events.
type EventPayload struct {
	Event      string            `json:"event"`
	Properties map[string]string `json:"properties,omitempty"`
}

// TestPayload returns the fixed event the probe sends on every run.
// Its JSON form is {"event":"test_event","properties":{"key1":"value1","key2":"value2"}}.
func TestPayload() EventPayload {
	return EventPayload{
		Event: "test_event",
		Properties: map[string]string{
			"key1": "value1",
			"key2": "value2",
		},
	}
}

// EventAck is what the stub ingest server answers in ok mode.
type EventAck struct {
	OK bool `json:"ok"`
}

// EventCount is returned by GET /stats.
type EventCount struct {
	Event string `json:"event"`
	Count int64  `json:"count"`
}
