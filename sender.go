package tgstats

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jfk9w-go/flu/colf"
	"github.com/jfk9w-go/flu/logf"
	"github.com/jfk9w-go/flu/me3x"
	"github.com/jfk9w-go/flu/syncf"
	"github.com/pkg/errors"
)

// sender issues RPC calls on behalf of a single session and keeps
// statistics calls attributed to their shard until the transport
// reports them finished. Sessions share one sender and its lock.
type sender struct {
	transport Transport
	store     EntityStore
	clock     syncf.Clock
	metrics   me3x.Registry
	config    Config
	channel   ChannelRef

	mu          syncf.RWMutex
	outstanding map[ShardID]colf.Set[Handle]
	timer       *time.Timer
	closed      bool
}

func (s *sender) String() string {
	return "tgstats.sender"
}

// makeRequest issues a tracked statistics call. The call stays
// attributed to the channel's statistics shard until a check cycle or
// close observes it finished. Requests whose channel is served by the
// home shard fall back to untracked sends.
func (s *sender) makeRequest(ctx context.Context, req Request, done func([]byte), fail func(error)) {
	shard := s.transport.StatsShard(s.channel)
	if shard == ShardNone {
		s.send(ctx, req, done, fail)
		return
	}

	if s.isClosed(ctx) {
		fail(errors.WithStack(ErrClosed))
		return
	}

	done, fail = s.instrument(ctx, req.Method(), done, fail)
	handle := s.transport.Send(ctx, req, shard, done, fail)
	s.track(ctx, shard, handle)
}

// send issues an untracked home shard call.
func (s *sender) send(ctx context.Context, req Request, done func([]byte), fail func(error)) {
	if s.isClosed(ctx) {
		fail(errors.WithStack(ErrClosed))
		return
	}

	done, fail = s.instrument(ctx, req.Method(), done, fail)
	s.transport.Send(ctx, req, ShardNone, done, fail)
}

func (s *sender) instrument(ctx context.Context, method string, done func([]byte), fail func(error)) (func([]byte), func(error)) {
	labels := s.channel.Labels().Add("method", method)
	s.metrics.Counter("requests", labels).Inc()

	start := s.clock.Now()
	observe := func(err error) {
		elapsed := s.clock.Now().Sub(start)
		s.metrics.Histogram("request_duration_ms", labels, nil).Observe(float64(elapsed.Milliseconds()))
		logf.Get(s).Resultf(ctx, logf.Debug, logf.Warn, "%s [%s] => %v", method, s.channel, err)
	}

	return func(payload []byte) {
			observe(nil)
			done(payload)
		},
		func(err error) {
			s.metrics.Counter("request_errors", labels).Inc()
			observe(err)
			fail(err)
		}
}

func (s *sender) track(ctx context.Context, shard ShardID, handle Handle) {
	ctx, cancel := s.mu.Lock(ctx)
	if ctx.Err() != nil {
		return
	}
	defer cancel()

	if s.closed {
		return
	}

	s.transport.RegisterOutstanding(shard, handle)
	handles := s.outstanding[shard]
	handles.Add(handle)
	s.outstanding[shard] = handles
	if s.timer == nil {
		s.timer = time.AfterFunc(s.config.checkEvery(), s.checkRequests)
	}

	logf.Get(s).Tracef(ctx, "tracking %d on shard %d for [%s]", handle, shard, s.channel)
}

// checkRequests runs on the timer goroutine and unregisters calls the
// transport no longer reports as pending. It reconciles bookkeeping
// only and never cancels anything.
func (s *sender) checkRequests() {
	ctx, cancel := s.mu.Lock(context.Background())
	if ctx.Err() != nil {
		return
	}
	defer cancel()

	if s.closed {
		return
	}

	reaped := 0
	for shard, handles := range s.outstanding {
		for handle := range handles {
			if s.transport.Pending(handle) {
				continue
			}

			s.transport.UnregisterOutstanding(shard, handle)
			delete(handles, handle)
			reaped++
		}

		if len(handles) == 0 {
			delete(s.outstanding, shard)
		}
	}

	if reaped > 0 {
		s.metrics.Counter("reaped_requests", s.channel.Labels()).Add(float64(reaped))
	}

	if len(s.outstanding) > 0 {
		s.timer.Reset(s.config.checkEvery())
	} else {
		s.timer = nil
	}

	logf.Get(s).Debugf(ctx, "reaped %d finished calls for [%s], %d shards still busy", reaped, s.channel, len(s.outstanding))
}

func (s *sender) isClosed(ctx context.Context) bool {
	ctx, cancel := s.mu.RLock(ctx)
	if ctx.Err() != nil {
		return true
	}
	defer cancel()

	return s.closed
}

// update applies a session state mutation under the lock unless the
// session is closed.
func (s *sender) update(ctx context.Context, update func()) error {
	ctx, cancel := s.mu.Lock(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	defer cancel()

	if s.closed {
		return errors.WithStack(ErrClosed)
	}

	update()
	return nil
}

// close unregisters every tracked call exactly once and stops the
// check timer. Safe to call more than once.
func (s *sender) close() {
	_, cancel := s.mu.Lock(context.Background())
	defer cancel()

	if s.closed {
		return
	}

	s.closed = true
	for shard, handles := range s.outstanding {
		for handle := range handles {
			s.transport.UnregisterOutstanding(shard, handle)
		}

		delete(s.outstanding, shard)
	}

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *sender) mergeEntities(ctx context.Context, users, chats []json.RawMessage) {
	if users := decodeUsers(users); len(users) > 0 {
		err := s.store.MergeUsers(ctx, users)
		logf.Get(s).Resultf(ctx, logf.Trace, logf.Warn, "merge %d users for [%s]: %v", len(users), s.channel, err)
	}

	if chats := decodeChats(chats); len(chats) > 0 {
		err := s.store.MergeChats(ctx, chats)
		logf.Get(s).Resultf(ctx, logf.Trace, logf.Warn, "merge %d chats for [%s]: %v", len(chats), s.channel, err)
	}
}
