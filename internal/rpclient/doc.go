// Package rpclient implements request/response correlation over a shared
// connection to the workcell server.
//
// Every call gets a strictly increasing id and a PendingCall entry with its own
// deadline timer. The receive side hands frames to Deliver; the first of
// {matching response, timer, FailPending} removes the entry under the client
// mutex and completes the call, the others find nothing to do. A response with
// result=false is not an error at this layer: Call returns it as data and the
// helpers Expect, Decode, Do and Fetch translate it into an errs.RejectedError.
//
// Frames that cannot be matched (malformed, no integer id, carrying an event
// name, unknown id, wrong response name while validation is on) are dropped.
//
// Example:
//
//	rpc := rpclient.New(ws, rpclient.WithTimeout(5*time.Second))
//	ws.SetHooks(transport.Hooks{OnMessage: func(b []byte) { rpc.Deliver(b) }})
//	if err := ws.Connect(ctx, "ws://localhost:6789"); err != nil { log.Fatal(err) }
//
//	resp, err := rpc.Call("RegisterUser", map[string]string{"user_name": "John"}, "RegisterUser")
//	if err := rpclient.Expect(resp, err); err != nil {
//	    // timeout, connection loss or server rejection
//	}
package rpclient
