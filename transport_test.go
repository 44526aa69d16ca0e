package tgstats_test

import (
	"context"
	"sync"
	"time"

	tgstats "github.com/jfk9w-go/telegram-stats-api"
	"github.com/pkg/errors"
)

func getContext() (context.Context, func()) {
	return context.WithTimeout(context.Background(), time.Minute)
}

func channelRef(megagroup bool) tgstats.ChannelRef {
	return tgstats.ChannelRef{
		ID:         tgstats.FlattenChannel(123),
		AccessHash: 42,
		Megagroup:  megagroup,
	}
}

type testReply struct {
	payload string
	err     error
}

// testCall records one Send. In manual mode it also carries the
// completion callbacks until the test releases them.
type testCall struct {
	Handle tgstats.Handle
	Method string
	Req    tgstats.Request
	Shard  tgstats.ShardID

	done func([]byte)
	fail func(error)
}

// testTransport is a scripted Transport. Replies are keyed by method
// name and consumed in order. Unless manual is set, each call
// completes synchronously inside Send.
type testTransport struct {
	shard  tgstats.ShardID
	manual bool

	mu           sync.Mutex
	last         tgstats.Handle
	replies      map[string][]testReply
	calls        []*testCall
	pending      map[tgstats.Handle]*testCall
	registered   []tgstats.Handle
	unregistered []tgstats.Handle
}

func newTestTransport(shard tgstats.ShardID) *testTransport {
	return &testTransport{
		shard:   shard,
		replies: make(map[string][]testReply),
		pending: make(map[tgstats.Handle]*testCall),
	}
}

func (t *testTransport) reply(method, payload string) *testTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies[method] = append(t.replies[method], testReply{payload: payload})
	return t
}

func (t *testTransport) replyErr(method string, err error) *testTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies[method] = append(t.replies[method], testReply{err: err})
	return t
}

func (t *testTransport) Send(ctx context.Context, req tgstats.Request, shard tgstats.ShardID, done func([]byte), fail func(error)) tgstats.Handle {
	t.mu.Lock()
	t.last++
	call := &testCall{
		Handle: t.last,
		Method: req.Method(),
		Req:    req,
		Shard:  shard,
		done:   done,
		fail:   fail,
	}

	t.calls = append(t.calls, call)
	if t.manual {
		t.pending[call.Handle] = call
		t.mu.Unlock()
		return call.Handle
	}

	var reply testReply
	scripted := false
	if queue := t.replies[call.Method]; len(queue) > 0 {
		reply, scripted = queue[0], true
		t.replies[call.Method] = queue[1:]
	}

	t.mu.Unlock()

	switch {
	case !scripted:
		fail(errors.Errorf("unscripted call [%s]", call.Method))
	case reply.err != nil:
		fail(reply.err)
	default:
		done([]byte(reply.payload))
	}

	return call.Handle
}

func (t *testTransport) Pending(handle tgstats.Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[handle]
	return ok
}

func (t *testTransport) RegisterOutstanding(shard tgstats.ShardID, handle tgstats.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.registered = append(t.registered, handle)
}

func (t *testTransport) UnregisterOutstanding(shard tgstats.ShardID, handle tgstats.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unregistered = append(t.unregistered, handle)
}

func (t *testTransport) StatsShard(channel tgstats.ChannelRef) tgstats.ShardID {
	return t.shard
}

// complete releases a manually held call with a payload.
func (t *testTransport) complete(handle tgstats.Handle, payload string) {
	t.mu.Lock()
	call := t.pending[handle]
	delete(t.pending, handle)
	t.mu.Unlock()

	if call != nil {
		call.done([]byte(payload))
	}
}

// failPending releases a manually held call with an error.
func (t *testTransport) failPending(handle tgstats.Handle, err error) {
	t.mu.Lock()
	call := t.pending[handle]
	delete(t.pending, handle)
	t.mu.Unlock()

	if call != nil {
		call.fail(err)
	}
}

func (t *testTransport) requests(method string) []tgstats.Request {
	t.mu.Lock()
	defer t.mu.Unlock()

	var list []tgstats.Request
	for _, call := range t.calls {
		if call.Method == method {
			list = append(list, call.Req)
		}
	}

	return list
}

func (t *testTransport) registerCount(handle tgstats.Handle) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countHandles(t.registered, handle)
}

func (t *testTransport) unregisterCount(handle tgstats.Handle) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countHandles(t.unregistered, handle)
}

func countHandles(handles []tgstats.Handle, handle tgstats.Handle) int {
	count := 0
	for _, h := range handles {
		if h == handle {
			count++
		}
	}

	return count
}
