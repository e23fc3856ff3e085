package rpclient

import (
	"github.com/EgorLis/arcorclient/internal/errs"
	"github.com/EgorLis/arcorclient/internal/wire"
)

// ========================= result helpers =========================

// Expect turns a call result into an error: transport and timeout errors pass
// through, result=false becomes a RejectedError carrying the server messages.
func Expect(resp *wire.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.Result {
		return &errs.RejectedError{Request: resp.Response, Messages: resp.Messages}
	}
	return nil
}

// Decode is Expect followed by decoding the response data into a T.
func Decode[T any](resp *wire.Response, err error) (T, error) {
	var out T
	if err := Expect(resp, err); err != nil {
		return out, err
	}
	if err := wire.Decode(resp.Data, &out); err != nil {
		return out, err
	}
	return out, nil
}

// ========================= typed calls =========================

// Do performs a call that must succeed and discards the data.
func (c *Client) Do(request string, args any) error {
	return Expect(c.Call(request, args, request))
}

// Fetch performs a call that must succeed and decodes its data into a T.
func Fetch[T any](c *Client, request string, args any) (T, error) {
	return Decode[T](c.Call(request, args, request))
}

// FetchApply is Fetch with apply run on the decoded data in inbound frame
// order, so events that follow the response on the wire are applied after it.
// apply is skipped when the server rejects the call or the data does not
// decode.
func FetchApply[T any](c *Client, request string, args any, apply func(T)) (T, error) {
	var (
		out    T
		decErr error
	)
	resp, err := c.CallWith(request, args, request, func(r *wire.Response) {
		if !r.Result {
			return
		}
		if decErr = wire.Decode(r.Data, &out); decErr == nil {
			apply(out)
		}
	})
	if err := Expect(resp, err); err != nil {
		var zero T
		return zero, err
	}
	return out, decErr
}
