package tgstats

import (
	"context"
	"encoding/json"

	"github.com/jfk9w-go/flu"
	"github.com/jfk9w-go/flu/logf"
	"github.com/jfk9w-go/flu/syncf"
	"github.com/pkg/errors"
)

// MessageStatistics assembles the interaction statistics of a single
// channel post or story: the interaction graphs, the view and reaction
// counters and the public/private forward split derived from the first
// public forwards page.
type MessageStatistics struct {
	sender   *sender
	forwards *PublicForwards
	post     RecentPostID

	// guarded by sender.mu
	firstSlice *PublicForwardsSlice
}

func (s *MessageStatistics) String() string {
	return "tgstats.message"
}

// Request fetches and assembles a fresh PostStatistics. Graph and
// counter fetches degrade to empty values on backend errors, so the
// promise fails only when the session is closed, a fetch is already in
// flight, or the forwards page cannot be loaded.
func (s *MessageStatistics) Request(ctx context.Context) syncf.Ref[PostStatistics] {
	promise := new(syncf.Var[PostStatistics])
	if s.sender.channel.Megagroup {
		_ = syncf.Failure[PostStatistics](ctx, promise, errors.WithStack(ErrUnsupportedPeer))
		return promise
	}

	s.requestGraphs(ctx, promise)
	return promise
}

func (s *MessageStatistics) requestGraphs(ctx context.Context, promise *syncf.Var[PostStatistics]) {
	var req Request
	constructor := "stats.messageStats"
	if s.post.Story.Valid() {
		req = GetStoryStats{Peer: s.sender.channel.inputPeer(), ID: s.post.Story.Story}
		constructor = "stats.storyStats"
	} else {
		req = GetMessageStats{Channel: s.sender.channel.input(), MsgID: s.post.Message.Msg}
	}

	s.sender.makeRequest(ctx, req,
		func(payload []byte) {
			var data postStats
			if err := decodePayload(payload, constructor, &data); err != nil {
				logf.Get(s).Warnf(ctx, "decode post stats for [%s]: %v", s.post, err)
				data = postStats{}
			}

			s.requestInteractionInfo(ctx, promise, data.ViewsGraph.graph(), data.ReactionsByEmotionGraph.graph())
		},
		func(err error) {
			if errors.Is(err, ErrClosed) {
				_ = syncf.Failure[PostStatistics](ctx, promise, err)
				return
			}

			logf.Get(s).Warnf(ctx, "post stats for [%s]: %v", s.post, err)
			s.requestInteractionInfo(ctx, promise, GraphChart{}, GraphChart{})
		})
}

func (s *MessageStatistics) requestInteractionInfo(ctx context.Context, promise *syncf.Var[PostStatistics], interactions, reactions StatisticalGraph) {
	if s.post.Story.Valid() {
		req := GetStoriesByID{Peer: s.sender.channel.inputPeer(), ID: []StoryID{s.post.Story.Story}}
		s.sender.send(ctx, req,
			func(payload []byte) {
				s.requestFirstSlice(ctx, promise, interactions, reactions, s.storyInfo(ctx, payload))
			},
			func(err error) {
				if errors.Is(err, ErrClosed) {
					_ = syncf.Failure[PostStatistics](ctx, promise, err)
					return
				}

				logf.Get(s).Warnf(ctx, "story info for [%s]: %v", s.post, err)
				s.requestFirstSlice(ctx, promise, interactions, reactions, MessageInteractionInfo{})
			})
		return
	}

	req := GetMessages{Channel: s.sender.channel.input(), ID: []MsgID{s.post.Message.Msg}}
	s.sender.send(ctx, req,
		func(payload []byte) {
			s.requestFirstSlice(ctx, promise, interactions, reactions, s.messageInfo(ctx, payload))
		},
		func(err error) {
			if errors.Is(err, ErrClosed) {
				_ = syncf.Failure[PostStatistics](ctx, promise, err)
				return
			}

			logf.Get(s).Warnf(ctx, "message info for [%s]: %v", s.post, err)
			s.requestFirstSlice(ctx, promise, interactions, reactions, MessageInteractionInfo{})
		})
}

func (s *MessageStatistics) messageInfo(ctx context.Context, payload []byte) MessageInteractionInfo {
	var data messagesPayload
	if err := flu.DecodeFrom(flu.Bytes(payload), flu.JSON(&data)); err != nil {
		logf.Get(s).Warnf(ctx, "decode message info for [%s]: %v", s.post, err)
		return MessageInteractionInfo{}
	}

	s.sender.mergeEntities(ctx, data.Users, data.Chats)
	if len(data.Messages) == 0 {
		return MessageInteractionInfo{}
	}

	var message messageData
	if err := json.Unmarshal(data.Messages[0], &message); err != nil {
		logf.Get(s).Warnf(ctx, "decode message info for [%s]: %v", s.post, err)
		return MessageInteractionInfo{}
	}

	return message.info()
}

func (s *MessageStatistics) storyInfo(ctx context.Context, payload []byte) MessageInteractionInfo {
	var data storiesPayload
	if err := decodePayload(payload, "stories.stories", &data); err != nil {
		logf.Get(s).Warnf(ctx, "decode story info for [%s]: %v", s.post, err)
		return MessageInteractionInfo{}
	}

	s.sender.mergeEntities(ctx, data.Users, data.Chats)
	if len(data.Stories) == 0 {
		return MessageInteractionInfo{}
	}

	var story storyItemData
	if err := json.Unmarshal(data.Stories[0], &story); err != nil {
		logf.Get(s).Warnf(ctx, "decode story info for [%s]: %v", s.post, err)
		return MessageInteractionInfo{}
	}

	return story.info()
}

func (s *MessageStatistics) requestFirstSlice(ctx context.Context, promise *syncf.Var[PostStatistics], interactions, reactions StatisticalGraph, info MessageInteractionInfo) {
	err := s.forwards.request(ctx, ForwardsOffsetToken{}, func(slice PublicForwardsSlice, err error) {
		if err == nil {
			err = s.sender.update(ctx, func() {
				value := slice
				s.firstSlice = &value
			})
		}

		if err != nil {
			_ = syncf.Failure[PostStatistics](ctx, promise, err)
			return
		}

		stats := PostStatistics{
			InteractionGraph:        interactions,
			ReactionsByEmotionGraph: reactions,
			PublicForwards:          slice.Total,
			PrivateForwards:         info.Forwards - slice.Total,
			Views:                   info.Views,
			Reactions:               info.Reactions,
		}

		_ = syncf.Success(ctx, promise, stats)
		logf.Get(s).Debugf(ctx, "assembled post stats for [%s]", s.post)
	})
	if err != nil {
		_ = syncf.Failure[PostStatistics](ctx, promise, err)
	}
}

// FirstSlice returns a copy of the first public forwards page loaded
// by the last successful Request, nil before that.
func (s *MessageStatistics) FirstSlice() *PublicForwardsSlice {
	_, cancel := s.sender.mu.RLock(context.Background())
	defer cancel()

	if s.firstSlice == nil {
		return nil
	}

	slice := *s.firstSlice
	return &slice
}

// Close unregisters tracked calls and stops the check timer. Responses
// arriving afterwards complete their promises with ErrClosed and
// mutate nothing.
func (s *MessageStatistics) Close() error {
	s.sender.close()
	return nil
}
