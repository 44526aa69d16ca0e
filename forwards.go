package tgstats

import (
	"context"
	"encoding/json"

	"github.com/jfk9w-go/flu"
	"github.com/jfk9w-go/flu/logf"
	"github.com/pkg/errors"
)

// PublicForwards pages through the list of public forwards of a
// channel post or story. At most one page fetch is in flight at any
// time; the exposed total never decreases across pages.
type PublicForwards struct {
	sender *sender
	post   RecentPostID

	// both guarded by sender.mu
	busy      bool
	lastTotal int
}

func (f *PublicForwards) String() string {
	return "tgstats.forwards"
}

// Request fetches one page at the given token. The zero token requests
// the first page. The done callback receives the page unless the fetch
// fails or the session is closed; a fetch already in flight makes the
// call a no-op.
func (f *PublicForwards) Request(ctx context.Context, token ForwardsOffsetToken, done func(PublicForwardsSlice)) {
	_ = f.request(ctx, token, func(slice PublicForwardsSlice, err error) {
		if err == nil {
			done(slice)
		}
	})
}

// Close unregisters tracked calls and stops the check timer. Pages
// arriving afterwards are dropped.
func (f *PublicForwards) Close() error {
	f.sender.close()
	return nil
}

func (f *PublicForwards) request(ctx context.Context, token ForwardsOffsetToken, done func(PublicForwardsSlice, error)) error {
	if err := f.begin(ctx); err != nil {
		return err
	}

	if f.post.Story.Valid() {
		f.requestStory(ctx, token, done)
	} else {
		f.requestMessage(ctx, token, done)
	}

	return nil
}

func (f *PublicForwards) requestMessage(ctx context.Context, token ForwardsOffsetToken, done func(PublicForwardsSlice, error)) {
	offsetPeer := emptyPeer()
	if token.FullID.Valid() {
		if peer, err := f.sender.store.ResolvePeer(ctx, token.FullID.Peer); err == nil && peer != nil {
			offsetPeer = peer.input()
		}
	}

	req := GetMessagePublicForwards{
		Channel:    f.sender.channel.input(),
		MsgID:      f.post.Message.Msg,
		OffsetRate: token.Rate,
		OffsetPeer: offsetPeer,
		OffsetID:   token.FullID.Msg,
		Limit:      f.sender.config.forwardsLimit(),
	}

	f.sender.makeRequest(ctx, req,
		func(payload []byte) {
			slice, err := f.processMessages(ctx, token, payload)
			f.finish(ctx, slice, err, done)
		},
		func(err error) {
			f.finish(ctx, PublicForwardsSlice{}, err, done)
		})
}

func (f *PublicForwards) requestStory(ctx context.Context, token ForwardsOffsetToken, done func(PublicForwardsSlice, error)) {
	req := GetStoryPublicForwards{
		Peer:   f.sender.channel.inputPeer(),
		ID:     f.post.Story.Story,
		Offset: token.StoryOffset,
		Limit:  f.sender.config.forwardsLimit(),
	}

	f.sender.makeRequest(ctx, req,
		func(payload []byte) {
			slice, err := f.processForwards(ctx, token, payload)
			f.finish(ctx, slice, err, done)
		},
		func(err error) {
			f.finish(ctx, PublicForwardsSlice{}, err, done)
		})
}

func (f *PublicForwards) processMessages(ctx context.Context, token ForwardsOffsetToken, payload []byte) (PublicForwardsSlice, error) {
	var data messagesPayload
	if err := flu.DecodeFrom(flu.Bytes(payload), flu.JSON(&data)); err != nil {
		return PublicForwardsSlice{}, errors.Wrap(err, "decode messages")
	}

	f.sender.mergeEntities(ctx, data.Users, data.Chats)

	next := ForwardsOffsetToken{Rate: token.Rate}
	list := make([]RecentPostID, 0, len(data.Messages))
	for _, raw := range data.Messages {
		var message messageData
		if err := json.Unmarshal(raw, &message); err != nil {
			continue
		}

		if id, ok := f.exposeMessage(ctx, message); ok {
			list = append(list, RecentPostID{Message: id})
			next.FullID = id
		}
	}

	allLoaded := false
	total := 0
	switch data.Kind {
	case messagesFull:
		allLoaded = true
		total = len(list)
	case messagesSlice:
		if data.NextRate == nil || *data.NextRate == token.Rate {
			allLoaded = true
		} else {
			next.Rate = *data.NextRate
		}

		total = data.Count
	case messagesChannel:
		allLoaded = true
		total = data.Count
	case messagesNotModified:
		allLoaded = true
	}

	return PublicForwardsSlice{
		List:      list,
		Total:     total,
		AllLoaded: allLoaded,
		Token:     next,
	}, nil
}

func (f *PublicForwards) processForwards(ctx context.Context, token ForwardsOffsetToken, payload []byte) (PublicForwardsSlice, error) {
	var data publicForwardsPayload
	if err := decodePayload(payload, "stats.publicForwards", &data); err != nil {
		return PublicForwardsSlice{}, err
	}

	f.sender.mergeEntities(ctx, data.Users, data.Chats)

	next := ForwardsOffsetToken{StoryOffset: token.StoryOffset}
	list := make([]RecentPostID, 0, len(data.Forwards))
	for _, raw := range data.Forwards {
		var forward publicForward
		if err := json.Unmarshal(raw, &forward); err != nil {
			continue
		}

		switch {
		case forward.Message != nil:
			if id, ok := f.exposeMessage(ctx, *forward.Message); ok {
				list = append(list, RecentPostID{Message: id})
				next.FullID = id
			}
		case forward.Story != nil && forward.Story.Valid():
			list = append(list, RecentPostID{Story: *forward.Story})
		}
	}

	allLoaded := data.NextOffset == nil || *data.NextOffset == "" || *data.NextOffset == token.StoryOffset
	if !allLoaded {
		next.StoryOffset = *data.NextOffset
	}

	return PublicForwardsSlice{
		List:      list,
		Total:     data.Count,
		AllLoaded: allLoaded,
		Token:     next,
	}, nil
}

// exposeMessage merges the forwarded message into the store and
// returns its id. Messages without a date or with a peer the store
// cannot resolve are dropped.
func (f *PublicForwards) exposeMessage(ctx context.Context, message messageData) (FullMsgID, bool) {
	full := FullMsgID{Peer: message.Peer, Msg: message.ID}
	if !full.Valid() || message.Date == 0 {
		return FullMsgID{}, false
	}

	if peer, err := f.sender.store.ResolvePeer(ctx, full.Peer); err != nil || peer == nil {
		return FullMsgID{}, false
	}

	if err := f.sender.store.MergeMessage(ctx, message.entity()); err != nil {
		logf.Get(f).Warnf(ctx, "merge message [%s]: %v", full, err)
	}

	return full, true
}

func (f *PublicForwards) begin(ctx context.Context) error {
	ctx, cancel := f.sender.mu.Lock(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	defer cancel()

	if f.sender.closed {
		return errors.WithStack(ErrClosed)
	}

	if f.busy {
		return errors.WithStack(ErrBusy)
	}

	f.busy = true
	return nil
}

func (f *PublicForwards) finish(ctx context.Context, slice PublicForwardsSlice, err error, done func(PublicForwardsSlice, error)) {
	_, cancel := f.sender.mu.Lock(context.Background())
	f.busy = false
	switch {
	case f.sender.closed:
		if err == nil {
			slice, err = PublicForwardsSlice{}, errors.WithStack(ErrClosed)
		}
	case err == nil:
		if slice.Total < f.lastTotal {
			slice.Total = f.lastTotal
		}

		f.lastTotal = slice.Total
	}
	cancel()

	logf.Get(f).Resultf(ctx, logf.Debug, logf.Warn, "public forwards page for [%s]: %v", f.post, err)
	done(slice, err)
}
