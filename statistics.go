package tgstats

import (
	"context"
	"encoding/json"

	"github.com/jfk9w-go/flu"
	"github.com/jfk9w-go/flu/logf"
	"github.com/jfk9w-go/flu/syncf"
	"github.com/pkg/errors"
)

// Statistics fetches the analytics snapshot of a single channel or
// supergroup and resolves zoomed-in graphs strictly in submission
// order.
type Statistics struct {
	sender *sender
	queue  *sequentialQueue

	// both guarded by sender.mu
	channelStats    *ChannelStatistics
	supergroupStats *SupergroupStatistics
}

func (s *Statistics) String() string {
	return "tgstats.statistics"
}

// Request fetches a fresh snapshot: broadcast statistics for channels,
// megagroup statistics for supergroups. A failed fetch leaves the
// previously stored snapshot untouched.
func (s *Statistics) Request(ctx context.Context) syncf.Ref[Stats] {
	promise := new(syncf.Var[Stats])
	if s.sender.channel.Megagroup {
		s.requestMegagroup(ctx, promise)
	} else {
		s.requestBroadcast(ctx, promise)
	}

	return promise
}

func (s *Statistics) requestBroadcast(ctx context.Context, promise *syncf.Var[Stats]) {
	req := GetBroadcastStats{Channel: s.sender.channel.input()}
	s.sender.makeRequest(ctx, req,
		func(payload []byte) {
			var data broadcastStats
			err := decodePayload(payload, "stats.broadcastStats", &data)

			var stats *ChannelStatistics
			if err == nil {
				value := data.snapshot()
				stats = &value
				err = s.sender.update(ctx, func() { s.channelStats = stats })
			}

			if err != nil {
				_ = syncf.Failure[Stats](ctx, promise, err)
			} else {
				_ = syncf.Success(ctx, promise, Stats{Channel: stats})
			}

			logf.Get(s).Resultf(ctx, logf.Debug, logf.Warn, "broadcast stats for [%s]: %v", s.sender.channel, err)
		},
		func(err error) {
			_ = syncf.Failure[Stats](ctx, promise, err)
		})
}

func (s *Statistics) requestMegagroup(ctx context.Context, promise *syncf.Var[Stats]) {
	req := GetMegagroupStats{Channel: s.sender.channel.input()}
	s.sender.makeRequest(ctx, req,
		func(payload []byte) {
			var data megagroupStats
			err := decodePayload(payload, "stats.megagroupStats", &data)

			var stats *SupergroupStatistics
			if err == nil {
				s.sender.mergeEntities(ctx, data.Users, nil)
				value := data.snapshot()
				stats = &value
				err = s.sender.update(ctx, func() { s.supergroupStats = stats })
			}

			if err != nil {
				_ = syncf.Failure[Stats](ctx, promise, err)
			} else {
				_ = syncf.Success(ctx, promise, Stats{Supergroup: stats})
			}

			logf.Get(s).Resultf(ctx, logf.Debug, logf.Warn, "megagroup stats for [%s]: %v", s.sender.channel, err)
		},
		func(err error) {
			_ = syncf.Failure[Stats](ctx, promise, err)
		})
}

// RequestZoom resolves a zoomed-in graph by its token. Zoom requests
// are sent strictly one at a time in submission order; a failed
// request lets the next one proceed.
func (s *Statistics) RequestZoom(ctx context.Context, token string, x int64) syncf.Ref[StatisticalGraph] {
	promise := new(syncf.Var[StatisticalGraph])
	action := queueAction{
		run: func() {
			s.sender.makeRequest(ctx, LoadAsyncGraph{Token: token, X: x},
				func(payload []byte) {
					var data graphPayload
					err := errors.Wrap(flu.DecodeFrom(flu.Bytes(payload), flu.JSON(&data)), "decode graph")
					if err != nil {
						_ = syncf.Failure[StatisticalGraph](ctx, promise, err)
					} else {
						_ = syncf.Success(ctx, promise, data.graph())
					}

					s.queue.complete()
					logf.Get(s).Resultf(ctx, logf.Debug, logf.Warn, "zoom [%s] for [%s]: %v", token, s.sender.channel, err)
				},
				func(err error) {
					_ = syncf.Failure[StatisticalGraph](ctx, promise, err)
					s.queue.complete()
				})
		},
		abort: func(err error) {
			_ = syncf.Failure[StatisticalGraph](ctx, promise, err)
		},
	}

	if err := s.queue.push(ctx, action); err != nil {
		_ = syncf.Failure[StatisticalGraph](ctx, promise, err)
	}

	return promise
}

// ChannelStats returns a copy of the last broadcast snapshot, nil
// before the first successful Request.
func (s *Statistics) ChannelStats() *ChannelStatistics {
	_, cancel := s.sender.mu.RLock(context.Background())
	defer cancel()

	if s.channelStats == nil {
		return nil
	}

	stats := *s.channelStats
	return &stats
}

// SupergroupStats returns a copy of the last megagroup snapshot, nil
// before the first successful Request.
func (s *Statistics) SupergroupStats() *SupergroupStatistics {
	_, cancel := s.sender.mu.RLock(context.Background())
	defer cancel()

	if s.supergroupStats == nil {
		return nil
	}

	stats := *s.supergroupStats
	return &stats
}

// Close unregisters tracked calls, stops the check timer and drops
// queued zoom actions. Responses arriving afterwards complete their
// promises with ErrClosed and mutate nothing.
func (s *Statistics) Close() error {
	s.queue.close()
	s.sender.close()
	return nil
}

func (d broadcastStats) snapshot() ChannelStatistics {
	stats := ChannelStatistics{
		StartDate: d.Period.MinDate,
		EndDate:   d.Period.MaxDate,

		MemberCount:       d.Followers.value(),
		MeanViewCount:     d.ViewsPerPost.value(),
		MeanShareCount:    d.SharesPerPost.value(),
		MeanReactionCount: d.ReactionsPerPost.value(),

		MeanStoryViewCount:     d.ViewsPerStory.value(),
		MeanStoryShareCount:    d.SharesPerStory.value(),
		MeanStoryReactionCount: d.ReactionsPerStory.value(),

		EnabledNotificationsPercentage: RatioPercentage(d.EnabledNotifications.Part, d.EnabledNotifications.Total),

		MemberCountGraph:             d.GrowthGraph.graph(),
		JoinGraph:                    d.FollowersGraph.graph(),
		MuteGraph:                    d.MuteGraph.graph(),
		ViewCountByHourGraph:         d.TopHoursGraph.graph(),
		ViewCountBySourceGraph:       d.ViewsBySourceGraph.graph(),
		JoinBySourceGraph:            d.NewFollowersBySourceGraph.graph(),
		LanguageGraph:                d.LanguagesGraph.graph(),
		MessageInteractionGraph:      d.InteractionsGraph.graph(),
		InstantViewInteractionGraph:  d.IVInteractionsGraph.graph(),
		ReactionsByEmotionGraph:      d.ReactionsByEmotionGraph.graph(),
		StoryInteractionsGraph:       d.StoryInteractionsGraph.graph(),
		StoryReactionsByEmotionGraph: d.StoryReactionsByEmotionGraph.graph(),
	}

	for _, raw := range d.RecentPostsInteractions {
		var counters postInteractionCounters
		if err := json.Unmarshal(raw, &counters); err != nil {
			continue
		}

		stats.RecentInteractions = append(stats.RecentInteractions, counters.info())
	}

	return stats
}

func (d megagroupStats) snapshot() SupergroupStatistics {
	stats := SupergroupStatistics{
		StartDate: d.Period.MinDate,
		EndDate:   d.Period.MaxDate,

		MemberCount:  d.Members.value(),
		MessageCount: d.Messages.value(),
		ViewerCount:  d.Viewers.value(),
		SenderCount:  d.Posters.value(),

		MemberCountGraph:    d.GrowthGraph.graph(),
		JoinGraph:           d.MembersGraph.graph(),
		JoinBySourceGraph:   d.NewMembersBySourceGraph.graph(),
		LanguageGraph:       d.LanguagesGraph.graph(),
		MessageContentGraph: d.MessagesGraph.graph(),
		ActionGraph:         d.ActionsGraph.graph(),
		DayGraph:            d.TopHoursGraph.graph(),
		WeekGraph:           d.WeekdaysGraph.graph(),
	}

	for _, poster := range d.TopPosters {
		stats.TopSenders = append(stats.TopSenders, MessageSenderInfo{
			UserID:            FlattenUser(poster.UserID),
			SentMessages:      poster.Messages,
			AverageCharacters: poster.AvgChars,
		})
	}

	// the backend reports bans under "kicked" and restrictions under "banned"
	for _, admin := range d.TopAdmins {
		stats.TopAdministrators = append(stats.TopAdministrators, AdministratorActionsInfo{
			UserID:     FlattenUser(admin.UserID),
			Deleted:    admin.Deleted,
			Banned:     admin.Kicked,
			Restricted: admin.Banned,
		})
	}

	for _, inviter := range d.TopInviters {
		stats.TopInviters = append(stats.TopInviters, InviterInfo{
			UserID:       FlattenUser(inviter.UserID),
			AddedMembers: inviter.Invitations,
		})
	}

	return stats
}
