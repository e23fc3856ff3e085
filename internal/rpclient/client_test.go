package rpclient

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EgorLis/arcorclient/internal/errs"
	"github.com/EgorLis/arcorclient/internal/logging"
	"github.com/EgorLis/arcorclient/internal/transport"
	"github.com/EgorLis/arcorclient/internal/transport/transporttest"
	"github.com/EgorLis/arcorclient/internal/wire"
)

func newClient(t *testing.T, opts ...Option) (*Client, *transporttest.Fake) {
	t.Helper()
	f := transporttest.New()
	c := New(f, append([]Option{WithLogger(logging.ForTest(t))}, opts...)...)
	f.SetHooks(transport.Hooks{OnMessage: func(b []byte) { c.Deliver(b) }})
	require.NoError(t, f.Connect(context.Background(), "ws://fake"))
	return c, f
}

type callResult struct {
	resp *wire.Response
	err  error
}

func callAsync(c *Client, request string, args any, expect string) <-chan callResult {
	ch := make(chan callResult, 1)
	go func() {
		resp, err := c.Call(request, args, expect)
		ch <- callResult{resp, err}
	}()
	return ch
}

func await(t *testing.T, ch <-chan callResult) callResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(3 * time.Second):
		t.Fatalf("call did not complete")
		return callResult{}
	}
}

func TestCallResolvesWithMatchingResponse(t *testing.T) {
	c, f := newClient(t)
	ch := callAsync(c, "GetScene", map[string]string{"id": "s1"}, "GetScene")

	req, ok := f.NextSent(time.Second)
	require.True(t, ok)
	assert.Equal(t, "GetScene", req.Request)
	assert.True(t, c.IsPending(req.ID))

	f.Reply(req, true, map[string]string{"name": "cell"})
	r := await(t, ch)
	require.NoError(t, r.err)
	assert.True(t, r.resp.Result)
	assert.JSONEq(t, `{"name":"cell"}`, string(r.resp.Data))
	assert.False(t, c.IsPending(req.ID))
	assert.Zero(t, c.Pending())
}

func TestCallTimesOut(t *testing.T) {
	c, f := newClient(t, WithTimeout(30*time.Millisecond))
	ch := callAsync(c, "SystemInfo", nil, "")

	req, ok := f.NextSent(time.Second)
	require.True(t, ok)

	r := await(t, ch)
	require.Error(t, r.err)
	assert.True(t, errors.Is(r.err, errs.ErrTimeout))
	var te *errs.TimeoutError
	require.True(t, errors.As(r.err, &te))
	assert.Equal(t, req.ID, te.ID)
	assert.False(t, c.IsPending(req.ID))

	// a late response is dropped
	assert.False(t, c.Deliver(transporttest.ResponseFrame("SystemInfo", req.ID, true, nil)))
}

func TestIdsStrictlyIncrease(t *testing.T) {
	c, f := newClient(t, WithTimeout(20*time.Millisecond))
	for i := 0; i < 3; i++ {
		_, _ = c.Call("Ping", nil, "")
	}
	reqs := f.SentRequests()
	require.Len(t, reqs, 3)
	assert.Less(t, reqs[0].ID, reqs[1].ID)
	assert.Less(t, reqs[1].ID, reqs[2].ID)
	assert.Equal(t, reqs[2].ID, c.LastID())
}

func TestResponseNameValidation(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		c, f := newClient(t, WithTimeout(50*time.Millisecond))
		ch := callAsync(c, "OpenScene", nil, "OpenScene")
		req, _ := f.NextSent(time.Second)

		assert.False(t, c.Deliver(transporttest.ResponseFrame("CloseScene", req.ID, true, nil)))
		r := await(t, ch)
		assert.True(t, errors.Is(r.err, errs.ErrTimeout))
	})
	t.Run("disabled", func(t *testing.T) {
		c, f := newClient(t, WithTimeout(time.Second), WithResponseValidation(false))
		ch := callAsync(c, "OpenScene", nil, "OpenScene")
		req, _ := f.NextSent(time.Second)

		assert.True(t, c.Deliver(transporttest.ResponseFrame("CloseScene", req.ID, true, nil)))
		r := await(t, ch)
		require.NoError(t, r.err)
		assert.Equal(t, "CloseScene", r.resp.Response)
	})
}

func TestRejectionIsReturnedAsData(t *testing.T) {
	c, f := newClient(t)
	ch := callAsync(c, "RenameScene", nil, "")
	req, _ := f.NextSent(time.Second)
	f.Reply(req, false, nil, "Scene name already exists.")

	r := await(t, ch)
	require.NoError(t, r.err)
	assert.False(t, r.resp.Result)
	assert.Equal(t, []string{"Scene name already exists."}, r.resp.Messages)

	err := Expect(r.resp, r.err)
	var rej *errs.RejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "RenameScene", rej.Request)
	assert.Equal(t, []string{"Scene name already exists."}, rej.Messages)
}

func TestMalformedFramesNeverComplete(t *testing.T) {
	c, f := newClient(t, WithTimeout(time.Second))
	ch := callAsync(c, "ListScenes", nil, "")
	req, _ := f.NextSent(time.Second)

	for _, frame := range []string{
		"",
		"{}",
		`{"response":"ListScenes","id":`,
		`{"response":"ListScenes"}`,
		`{"response":"ListScenes","id":"1"}`,
		`{"response":"ListScenes","id":` + itoa(req.ID) + `,"result":"yes"}`,
		`{"event":"SceneChanged","response":"ListScenes","id":` + itoa(req.ID) + `,"result":true}`,
	} {
		assert.NotPanics(t, func() { assert.False(t, c.Deliver([]byte(frame)), frame) })
	}
	assert.True(t, c.IsPending(req.ID))

	f.Reply(req, true, []string{})
	require.NoError(t, await(t, ch).err)
}

func TestSendFailureRemovesPendingCall(t *testing.T) {
	f := transporttest.New()
	c := New(f)
	_, err := c.Call("SystemInfo", nil, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrState))
	assert.Zero(t, c.Pending())
}

func TestFailPending(t *testing.T) {
	c, f := newClient(t)
	a := callAsync(c, "A", nil, "")
	b := callAsync(c, "B", nil, "")
	_, _ = f.NextSent(time.Second)
	_, _ = f.NextSent(time.Second)

	lost := &errs.ConnectionError{Op: "read", Err: io.ErrUnexpectedEOF}
	assert.Equal(t, 2, c.FailPending(lost))
	for _, ch := range []<-chan callResult{a, b} {
		r := await(t, ch)
		assert.True(t, errors.Is(r.err, errs.ErrConnection))
	}
	assert.Zero(t, c.Pending())
}

func TestConcurrentCallsCompleteExactlyOnce(t *testing.T) {
	c, f := newClient(t, WithTimeout(5*time.Millisecond))
	f.Responder = func(f *transporttest.Fake, req wire.Request, _ []byte) {
		// race the deadline
		f.Reply(req, true, nil)
		f.Reply(req, true, nil)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	outcomes := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := c.Call("Ping", nil, "")
			if err == nil {
				assert.True(t, resp.Result)
			} else {
				assert.True(t, errors.Is(err, errs.ErrTimeout))
			}
			mu.Lock()
			outcomes++
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, outcomes)
	assert.Eventually(t, func() bool { return c.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRegisterUserScenario(t *testing.T) {
	c, f := newClient(t, WithTimeout(100*time.Millisecond))
	args := map[string]string{"user_name": "John"}

	ch := callAsync(c, "RegisterUser", args, "RegisterUser")
	req, _ := f.NextSent(time.Second)
	n := req.ID
	f.Deliver([]byte(`{"response":"RegisterUser","id":` + itoa(n) + `,"result":true,"messages":[]}`))
	require.NoError(t, Expect(await(t, ch).resp, nil))

	ch = callAsync(c, "RegisterUser", args, "RegisterUser")
	req, _ = f.NextSent(time.Second)
	f.Deliver([]byte(`{"response":"RegisterUser","id":` + itoa(req.ID+1) + `,"result":true,"messages":[]}`))
	r := await(t, ch)
	assert.True(t, errors.Is(r.err, errs.ErrTimeout))
}

func TestFetchDecodesData(t *testing.T) {
	c, f := newClient(t)
	f.Responder = func(f *transporttest.Fake, req wire.Request, _ []byte) {
		f.Reply(req, true, map[string]any{"version": "1.2.0", "api_version": "1.0.0"})
	}
	type info struct {
		Version    string `json:"version"`
		APIVersion string `json:"api_version"`
	}
	got, err := Fetch[info](c, "SystemInfo", nil)
	require.NoError(t, err)
	assert.Equal(t, info{Version: "1.2.0", APIVersion: "1.0.0"}, got)
}

func TestFetchApplyRunsBeforeLaterFrames(t *testing.T) {
	c, f := newClient(t)
	var order []string
	next := make(chan struct{})
	f.Responder = func(f *transporttest.Fake, req wire.Request, _ []byte) {
		f.Reply(req, true, []string{"s1", "s2"})
		order = append(order, "next frame")
		close(next)
	}

	got, err := FetchApply(c, "ListScenes", nil, func(ids []string) {
		order = append(order, "apply "+ids[1])
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, got)
	select {
	case <-next:
	case <-time.After(time.Second):
		t.Fatal("responder did not finish")
	}
	assert.Equal(t, []string{"apply s2", "next frame"}, order)
}

func TestFetchApplySkipsRejectedAndUndecodable(t *testing.T) {
	c, f := newClient(t)
	result := false
	f.Responder = func(f *transporttest.Fake, req wire.Request, _ []byte) {
		f.Reply(req, result, map[string]int{"id": 1})
	}
	applied := 0
	apply := func(map[string]string) { applied++ }

	_, err := FetchApply(c, "ListScenes", nil, apply)
	assert.True(t, errors.Is(err, errs.ErrRejected))

	result = true
	_, err = FetchApply(c, "ListScenes", nil, apply)
	require.Error(t, err)
	assert.Zero(t, applied)
}

func TestResponseHookSkippedOnTimeout(t *testing.T) {
	c, f := newClient(t, WithTimeout(20*time.Millisecond))
	called := false
	_, err := c.CallWith("ListScenes", nil, "", func(*wire.Response) { called = true })
	assert.True(t, errors.Is(err, errs.ErrTimeout))

	req, ok := f.NextSent(time.Second)
	require.True(t, ok)
	f.Reply(req, true, nil)
	assert.False(t, called)
}

func TestResponseHookPanicFailsCall(t *testing.T) {
	c, f := newClient(t)
	f.Responder = func(f *transporttest.Fake, req wire.Request, _ []byte) {
		f.Reply(req, true, nil)
	}
	_, err := c.CallWith("ListScenes", nil, "", func(*wire.Response) { panic("bad apply") })
	require.Error(t, err)
	assert.Zero(t, c.Pending())
}

func itoa(n int64) string {
	b, _ := wire.Encode(n)
	return string(b)
}
