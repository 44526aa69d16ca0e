// Package tgstats fetches and assembles Telegram channel analytics:
// channel and supergroup statistics, message and story interaction
// stats, public forward lists and boost lists. The package owns the
// asynchronous request orchestration (per-shard lifecycle tracking
// with a periodic check cycle, a strictly sequential graph zoom queue
// and the slice pagination protocol) and delegates the RPC transport
// and entity storage to collaborator interfaces.
package tgstats

import (
	"time"

	"github.com/jfk9w-go/flu"
	"github.com/jfk9w-go/flu/colf"
	"github.com/jfk9w-go/flu/me3x"
	"github.com/jfk9w-go/flu/syncf"
)

// Config contains tunables shared by all sessions of a Client. The
// zero value falls back to compiled defaults.
type Config struct {
	CheckEvery           flu.Duration `yaml:"checkEvery,omitempty" doc:"How often outstanding statistics calls are checked for completion." default:"10s"`
	ForwardsPageLimit    int          `yaml:"forwardsPageLimit,omitempty" doc:"Public forwards page size." default:"100"`
	BoostsFirstPageLimit int          `yaml:"boostsFirstPageLimit,omitempty" doc:"First boosts page size." default:"10"`
	BoostsPageLimit      int          `yaml:"boostsPageLimit,omitempty" doc:"Boosts page size after the first page." default:"40"`
	LinkHost             string       `yaml:"linkHost,omitempty" doc:"Hostname used to render gift code links." default:"t.me"`
}

func (c Config) checkEvery() time.Duration {
	if c.CheckEvery.Value > 0 {
		return c.CheckEvery.Value
	}

	return 10 * time.Second
}

func (c Config) forwardsLimit() int {
	if c.ForwardsPageLimit > 0 {
		return c.ForwardsPageLimit
	}

	return 100
}

func (c Config) boostsLimit(offset string) int {
	if offset == "" {
		if c.BoostsFirstPageLimit > 0 {
			return c.BoostsFirstPageLimit
		}

		return 10
	}

	if c.BoostsPageLimit > 0 {
		return c.BoostsPageLimit
	}

	return 40
}

func (c Config) linkHost() string {
	if c.LinkHost != "" {
		return c.LinkHost
	}

	return "t.me"
}

// Client spawns statistics sessions. Transport and Store are required,
// the remaining fields are optional.
type Client struct {
	Transport Transport
	Store     EntityStore
	Clock     syncf.Clock
	Metrics   me3x.Registry
	Config    Config
}

// Statistics creates a channel or supergroup statistics session.
func (c *Client) Statistics(channel ChannelRef) *Statistics {
	return &Statistics{
		sender: c.newSender(channel),
		queue: &sequentialQueue{
			depth: c.metrics().Gauge("zoom_queue_depth", channel.Labels()),
		},
	}
}

// MessageStatistics creates a session assembling interaction
// statistics of a single channel post.
func (c *Client) MessageStatistics(channel ChannelRef, id MsgID) *MessageStatistics {
	post := RecentPostID{Message: FullMsgID{Peer: channel.ID, Msg: id}}
	return c.newMessageStatistics(channel, post)
}

// StoryStatistics creates a session assembling interaction statistics
// of a single channel story.
func (c *Client) StoryStatistics(channel ChannelRef, id StoryID) *MessageStatistics {
	post := RecentPostID{Story: FullStoryID{Peer: channel.ID, Story: id}}
	return c.newMessageStatistics(channel, post)
}

func (c *Client) newMessageStatistics(channel ChannelRef, post RecentPostID) *MessageStatistics {
	sender := c.newSender(channel)
	return &MessageStatistics{
		sender:   sender,
		forwards: &PublicForwards{sender: sender, post: post},
		post:     post,
	}
}

// PublicForwards creates a paginated public forwards session for a
// channel post or story.
func (c *Client) PublicForwards(channel ChannelRef, post RecentPostID) *PublicForwards {
	return &PublicForwards{
		sender: c.newSender(channel),
		post:   post,
	}
}

// Boosts creates a boost statistics session.
func (c *Client) Boosts(channel ChannelRef) *Boosts {
	return &Boosts{sender: c.newSender(channel)}
}

func (c *Client) metrics() me3x.Registry {
	if c.Metrics != nil {
		return c.Metrics.WithPrefix("tgstats")
	}

	return me3x.DummyRegistry{}
}

func (c *Client) newSender(channel ChannelRef) *sender {
	clock := c.Clock
	if clock == nil {
		clock = syncf.DefaultClock
	}

	return &sender{
		transport:   c.Transport,
		store:       c.Store,
		clock:       clock,
		metrics:     c.metrics(),
		config:      c.Config,
		channel:     channel,
		outstanding: make(map[ShardID]colf.Set[Handle]),
	}
}
