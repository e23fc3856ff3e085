// Package wire defines the JSON envelopes exchanged with the server and the codec
// used for their payloads.
//
//	request:  {"request": <name>, "id": <int>, "args": <T>}
//	response: {"response": <name>, "id": <int>, "result": <bool>, "messages": [...], "data": <T>}
//	event:    {"event": <name>, "changeType": <add|update|remove|update_base>, "data": <T>}
package wire

import "encoding/json"

// ChangeType is the sub-type carried by entity change events.
type ChangeType string

const (
	ChangeAdd        ChangeType = "add"
	ChangeUpdate     ChangeType = "update"
	ChangeRemove     ChangeType = "remove"
	ChangeUpdateBase ChangeType = "update_base"
)

// Request is an outbound RPC request.
type Request struct {
	Request string          `json:"request"`
	ID      int64           `json:"id"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// Response is an inbound RPC response. Result=false is a logical rejection and
// Messages then holds the server's explanation.
type Response struct {
	Response string          `json:"response"`
	ID       int64           `json:"id"`
	Result   bool            `json:"result"`
	Messages []string        `json:"messages"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Event is an inbound push event.
type Event struct {
	Event      string          `json:"event"`
	ChangeType ChangeType      `json:"changeType,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// EncodeRequest serializes a request envelope. A nil args value omits "args".
func EncodeRequest(name string, id int64, args any) ([]byte, error) {
	req := Request{Request: name, ID: id}
	if args != nil {
		raw, err := Encode(args)
		if err != nil {
			return nil, err
		}
		req.Args = raw
	}
	return Encode(&req)
}
