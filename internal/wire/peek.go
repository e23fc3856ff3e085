package wire

import "github.com/tidwall/gjson"

// Kind classifies an inbound frame.
type Kind int

const (
	KindMalformed Kind = iota
	KindResponse
	KindEvent
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindResponse:
		return "response"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Envelope is the routing information read from a frame without decoding its
// payload.
type Envelope struct {
	Kind       Kind
	Name       string
	ID         int64
	HasID      bool
	ChangeType ChangeType
}

// Peek classifies frame. Anything that is not a JSON object is malformed. A
// frame carrying "response" or an integer "id" is a response; otherwise a frame
// with a string "event" is an event.
func Peek(frame []byte) Envelope {
	if len(frame) == 0 || !gjson.ValidBytes(frame) {
		return Envelope{Kind: KindMalformed}
	}
	if !gjson.ParseBytes(frame).IsObject() {
		return Envelope{Kind: KindMalformed}
	}

	res := gjson.GetManyBytes(frame, "response", "id", "event", "changeType")
	resp, id, event, change := res[0], res[1], res[2], res[3]

	var env Envelope
	if id.Type == gjson.Number && float64(id.Int()) == id.Num {
		env.ID, env.HasID = id.Int(), true
	}

	switch {
	case resp.Exists() || env.HasID:
		env.Kind = KindResponse
		if resp.Type == gjson.String {
			env.Name = resp.Str
		}
	case event.Type == gjson.String:
		env.Kind = KindEvent
		env.Name = event.Str
		if change.Type == gjson.String {
			env.ChangeType = ChangeType(change.Str)
		}
	default:
		env.Kind = KindUnknown
	}
	return env
}

// LooksLikeEvent reports whether frame carries an "event" key.
func LooksLikeEvent(frame []byte) bool {
	return gjson.GetBytes(frame, "event").Exists()
}
