package tgstats_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	tgstats "github.com/jfk9w-go/telegram-stats-api"
	"github.com/stretchr/testify/assert"
)

const broadcastStatsReply = `{
  "_": "stats.broadcastStats",
  "period": {"min_date": 1700000000, "max_date": 1702592000},
  "followers": {"current": 1000, "previous": 800},
  "views_per_post": {"current": 500, "previous": 400},
  "shares_per_post": {"current": 40, "previous": 50},
  "reactions_per_post": {"current": 75, "previous": 50},
  "enabled_notifications": {"part": 30, "total": 120},
  "growth_graph": {"_": "statsGraph", "json": {"data": "{\"g\": 1}"}, "zoom_token": "zt1"},
  "followers_graph": {"_": "statsGraphAsync", "token": "t-follow"},
  "mute_graph": {"_": "statsGraphError", "error": "NO_DATA"},
  "recent_posts_interactions": [
    {"_": "postInteractionCountersMessage", "msg_id": 7, "views": 100, "forwards": 5, "reactions": 3},
    {"_": "postInteractionCountersStory", "story_id": 9, "views": 50, "forwards": 1, "reactions": 2},
    {"_": "postInteractionCountersFuture", "views": 1}
  ]
}`

func TestStatistics_Broadcast(t *testing.T) {
	ctx, cancel := getContext()
	defer cancel()

	transport := newTestTransport(1).
		reply("stats.getBroadcastStats", broadcastStatsReply)

	client := &tgstats.Client{Transport: transport, Store: tgstats.NewMemoryStore()}
	stats := client.Statistics(channelRef(false))
	defer stats.Close()

	result, err := stats.Request(ctx).Get(ctx)
	assert.Nil(t, err)
	assert.Nil(t, result.Supergroup)
	if !assert.NotNil(t, result.Channel) {
		return
	}

	snapshot := *result.Channel
	assert.Equal(t, int64(1700000000), snapshot.StartDate)
	assert.Equal(t, int64(1702592000), snapshot.EndDate)
	assert.Equal(t, tgstats.StatisticalValue{Value: 1000, Previous: 800, GrowthRatePercentage: 25}, snapshot.MemberCount)
	assert.Equal(t, tgstats.StatisticalValue{Value: 500, Previous: 400, GrowthRatePercentage: 25}, snapshot.MeanViewCount)
	assert.Equal(t, tgstats.StatisticalValue{Value: 40, Previous: 50, GrowthRatePercentage: 20}, snapshot.MeanShareCount)
	assert.Equal(t, tgstats.StatisticalValue{Value: 75, Previous: 50, GrowthRatePercentage: 50}, snapshot.MeanReactionCount)
	assert.Equal(t, 25.0, snapshot.EnabledNotificationsPercentage)

	assert.Equal(t, tgstats.GraphChart{Data: json.RawMessage(`{"g": 1}`), ZoomToken: "zt1"}, snapshot.MemberCountGraph)
	assert.Equal(t, tgstats.GraphAsync{Token: "t-follow"}, snapshot.JoinGraph)
	assert.Equal(t, tgstats.GraphError{Message: "NO_DATA"}, snapshot.MuteGraph)
	assert.Equal(t, tgstats.GraphChart{}, snapshot.ViewCountByHourGraph)
	assert.Equal(t, tgstats.GraphChart{}, snapshot.LanguageGraph)

	expected := []tgstats.MessageInteractionInfo{
		{MessageID: 7, Views: 100, Forwards: 5, Reactions: 3},
		{StoryID: 9, Views: 50, Forwards: 1, Reactions: 2},
	}

	assert.Equal(t, expected, snapshot.RecentInteractions)

	requests := transport.requests("stats.getBroadcastStats")
	if assert.Len(t, requests, 1) {
		expected := tgstats.GetBroadcastStats{Channel: tgstats.InputChannel{ChannelID: 123, AccessHash: 42}}
		assert.Equal(t, expected, requests[0])
	}

	stored := stats.ChannelStats()
	if assert.NotNil(t, stored) {
		assert.Equal(t, snapshot, *stored)
	}
}

func TestStatistics_Megagroup(t *testing.T) {
	ctx, cancel := getContext()
	defer cancel()

	transport := newTestTransport(1).
		reply("stats.getMegagroupStats", `{
  "_": "stats.megagroupStats",
  "period": {"min_date": 1700000000, "max_date": 1702592000},
  "members": {"current": 2000, "previous": 1600},
  "messages": {"current": 300, "previous": 200},
  "top_posters": [{"_": "statsGroupTopPoster", "user_id": 501, "messages": 42, "avg_chars": 120}],
  "top_admins": [{"_": "statsGroupTopAdmin", "user_id": 502, "deleted": 1, "kicked": 2, "banned": 3}],
  "top_inviters": [{"_": "statsGroupTopInviter", "user_id": 503, "invitations": 9}],
  "users": [{"_": "user", "id": 501, "access_hash": 99, "first_name": "Jane", "last_name": "Roe"}]
}`)

	store := tgstats.NewMemoryStore()
	client := &tgstats.Client{Transport: transport, Store: store}
	stats := client.Statistics(channelRef(true))
	defer stats.Close()

	result, err := stats.Request(ctx).Get(ctx)
	assert.Nil(t, err)
	assert.Nil(t, result.Channel)
	if !assert.NotNil(t, result.Supergroup) {
		return
	}

	snapshot := *result.Supergroup
	assert.Equal(t, tgstats.StatisticalValue{Value: 2000, Previous: 1600, GrowthRatePercentage: 25}, snapshot.MemberCount)
	assert.Equal(t, tgstats.StatisticalValue{Value: 300, Previous: 200, GrowthRatePercentage: 50}, snapshot.MessageCount)

	assert.Equal(t, []tgstats.MessageSenderInfo{{UserID: 501, SentMessages: 42, AverageCharacters: 120}}, snapshot.TopSenders)
	assert.Equal(t, []tgstats.AdministratorActionsInfo{{UserID: 502, Deleted: 1, Banned: 2, Restricted: 3}}, snapshot.TopAdministrators)
	assert.Equal(t, []tgstats.InviterInfo{{UserID: 503, AddedMembers: 9}}, snapshot.TopInviters)

	peer, err := store.ResolvePeer(ctx, tgstats.FlattenUser(501))
	assert.Nil(t, err)
	if assert.NotNil(t, peer) {
		assert.Equal(t, tgstats.Peer{ID: 501, AccessHash: 99, Name: "Jane Roe"}, *peer)
	}

	requests := transport.requests("stats.getMegagroupStats")
	if assert.Len(t, requests, 1) {
		expected := tgstats.GetMegagroupStats{Channel: tgstats.InputChannel{ChannelID: 123, AccessHash: 42}}
		assert.Equal(t, expected, requests[0])
	}

	stored := stats.SupergroupStats()
	if assert.NotNil(t, stored) {
		assert.Equal(t, snapshot, *stored)
	}
}

func TestStatistics_UnexpectedConstructor(t *testing.T) {
	ctx, cancel := getContext()
	defer cancel()

	transport := newTestTransport(1).
		reply("stats.getBroadcastStats", `{"_": "stats.megagroupStats"}`)

	client := &tgstats.Client{Transport: transport, Store: tgstats.NewMemoryStore()}
	stats := client.Statistics(channelRef(false))
	defer stats.Close()

	_, err := stats.Request(ctx).Get(ctx)
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "unexpected constructor")
	assert.Nil(t, stats.ChannelStats())
}

func TestStatistics_KeepsSnapshotOnFailure(t *testing.T) {
	ctx, cancel := getContext()
	defer cancel()

	transport := newTestTransport(1).
		reply("stats.getBroadcastStats", broadcastStatsReply).
		replyErr("stats.getBroadcastStats", tgstats.Error{Type: "STATS_NOT_READY"})

	client := &tgstats.Client{Transport: transport, Store: tgstats.NewMemoryStore()}
	stats := client.Statistics(channelRef(false))
	defer stats.Close()

	first, err := stats.Request(ctx).Get(ctx)
	assert.Nil(t, err)

	_, err = stats.Request(ctx).Get(ctx)
	assert.Equal(t, tgstats.Error{Type: "STATS_NOT_READY"}, err)

	stored := stats.ChannelStats()
	if assert.NotNil(t, stored) {
		assert.Equal(t, *first.Channel, *stored)
	}
}

func TestStatistics_SnapshotCopy(t *testing.T) {
	ctx, cancel := getContext()
	defer cancel()

	transport := newTestTransport(1).
		reply("stats.getBroadcastStats", broadcastStatsReply)

	client := &tgstats.Client{Transport: transport, Store: tgstats.NewMemoryStore()}
	stats := client.Statistics(channelRef(false))
	defer stats.Close()

	_, err := stats.Request(ctx).Get(ctx)
	assert.Nil(t, err)

	stored := stats.ChannelStats()
	stored.MemberCount.Value = -1
	stored.StartDate = 0

	fresh := stats.ChannelStats()
	assert.Equal(t, 1000.0, fresh.MemberCount.Value)
	assert.Equal(t, int64(1700000000), fresh.StartDate)
}

func TestStatistics_RequestAfterClose(t *testing.T) {
	ctx, cancel := getContext()
	defer cancel()

	transport := newTestTransport(1).
		reply("stats.getBroadcastStats", broadcastStatsReply)

	client := &tgstats.Client{Transport: transport, Store: tgstats.NewMemoryStore()}
	stats := client.Statistics(channelRef(false))
	assert.Nil(t, stats.Close())

	_, err := stats.Request(ctx).Get(ctx)
	assert.ErrorIs(t, err, tgstats.ErrClosed)

	_, err = stats.RequestZoom(ctx, "t1", 0).Get(ctx)
	assert.ErrorIs(t, err, tgstats.ErrClosed)

	assert.Empty(t, transport.requests("stats.getBroadcastStats"))
}

func TestStatistics_ZoomQueueOrder(t *testing.T) {
	ctx, cancel := getContext()
	defer cancel()

	transport := newTestTransport(1)
	transport.manual = true

	client := &tgstats.Client{Transport: transport, Store: tgstats.NewMemoryStore()}
	stats := client.Statistics(channelRef(false))
	defer stats.Close()

	z1 := stats.RequestZoom(ctx, "t1", 0)
	z2 := stats.RequestZoom(ctx, "t2", 0)
	z3 := stats.RequestZoom(ctx, "t3", 0)

	assert.Len(t, transport.requests("stats.loadAsyncGraph"), 1)

	transport.complete(1, `{"_": "statsGraph", "json": {"data": "{}"}}`)
	graph, err := z1.Get(ctx)
	assert.Nil(t, err)
	assert.Equal(t, tgstats.GraphChart{Data: json.RawMessage(`{}`)}, graph)
	assert.Len(t, transport.requests("stats.loadAsyncGraph"), 2)

	transport.failPending(2, tgstats.Error{Type: "STATS_GRAPH_OUTDATED"})
	_, err = z2.Get(ctx)
	assert.Equal(t, tgstats.Error{Type: "STATS_GRAPH_OUTDATED"}, err)
	assert.Len(t, transport.requests("stats.loadAsyncGraph"), 3)

	transport.complete(3, `{"_": "statsGraphAsync", "token": "later"}`)
	graph, err = z3.Get(ctx)
	assert.Nil(t, err)
	assert.Equal(t, tgstats.GraphAsync{Token: "later"}, graph)

	tokens := make([]string, 0, 3)
	for _, req := range transport.requests("stats.loadAsyncGraph") {
		tokens = append(tokens, req.(tgstats.LoadAsyncGraph).Token)
	}

	assert.Equal(t, []string{"t1", "t2", "t3"}, tokens)
}

func TestStatistics_ZoomQueueClose(t *testing.T) {
	ctx, cancel := getContext()
	defer cancel()

	transport := newTestTransport(1)
	transport.manual = true

	client := &tgstats.Client{Transport: transport, Store: tgstats.NewMemoryStore()}
	stats := client.Statistics(channelRef(false))

	z1 := stats.RequestZoom(ctx, "t1", 0)
	z2 := stats.RequestZoom(ctx, "t2", 0)
	assert.Len(t, transport.requests("stats.loadAsyncGraph"), 1)

	assert.Nil(t, stats.Close())

	_, err := z1.Get(ctx)
	assert.ErrorIs(t, err, tgstats.ErrClosed)
	_, err = z2.Get(ctx)
	assert.ErrorIs(t, err, tgstats.ErrClosed)

	z3 := stats.RequestZoom(ctx, "t3", 0)
	_, err = z3.Get(ctx)
	assert.ErrorIs(t, err, tgstats.ErrClosed)

	// a response arriving after close must not override the abort
	transport.complete(1, `{"_": "statsGraph", "json": {"data": "{}"}}`)
	shortCtx, shortCancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer shortCancel()

	_, err = z1.Get(shortCtx)
	assert.ErrorIs(t, err, tgstats.ErrClosed)

	assert.Len(t, transport.requests("stats.loadAsyncGraph"), 1)
}

func TestStatistics_HomeShardUntracked(t *testing.T) {
	ctx, cancel := getContext()
	defer cancel()

	transport := newTestTransport(tgstats.ShardNone).
		reply("stats.getBroadcastStats", broadcastStatsReply)

	client := &tgstats.Client{Transport: transport, Store: tgstats.NewMemoryStore()}
	stats := client.Statistics(channelRef(false))
	defer stats.Close()

	_, err := stats.Request(ctx).Get(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 0, transport.registerCount(1))
}
