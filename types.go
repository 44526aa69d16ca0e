package tgstats

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jfk9w-go/flu/me3x"
	telegram "github.com/jfk9w-go/telegram-bot-api"
	"github.com/pkg/errors"
)

var (
	ErrClosed          = errors.New("closed")
	ErrBusy            = errors.New("busy")
	ErrUnsupportedPeer = errors.New("unsupported peer")
)

// Error is a backend error code propagated verbatim by the Transport
// (for example, STATS_GRAPH_OUTDATED or CHAT_ADMIN_REQUIRED).
type Error struct {
	Type string `json:"type"`
}

func (e Error) Error() string {
	return e.Type
}

// ShardID identifies a backend partition the statistics requests for
// a given channel must be routed to. ShardNone means the home shard:
// the call is still sent, but skips cancellation bookkeeping.
type ShardID int

const ShardNone ShardID = 0

// Handle identifies one in-flight call for the lifetime of its session.
// It is allocated by the Transport and used for bookkeeping only.
type Handle int64

type (
	MsgID   int64
	StoryID int64
)

// ChannelRef addresses a channel or supergroup. ID uses the bot API
// flattening convention (see FlattenUser and friends).
type ChannelRef struct {
	ID         telegram.ID
	AccessHash int64
	Megagroup  bool
}

func (r ChannelRef) Labels() me3x.Labels {
	return make(me3x.Labels, 0, 2).
		Add("channel", r.ID).
		Add("megagroup", r.Megagroup)
}

func (r ChannelRef) String() string {
	return strconv.FormatInt(int64(r.ID), 10)
}

type FullMsgID struct {
	Peer telegram.ID
	Msg  MsgID
}

func (id FullMsgID) Valid() bool {
	return id.Peer != 0 && id.Msg != 0
}

func (id FullMsgID) String() string {
	return fmt.Sprintf("%d/%d", id.Peer, id.Msg)
}

type FullStoryID struct {
	Peer  telegram.ID
	Story StoryID
}

func (id FullStoryID) Valid() bool {
	return id.Peer != 0 && id.Story != 0
}

func (id FullStoryID) String() string {
	return fmt.Sprintf("%d*%d", id.Peer, id.Story)
}

// RecentPostID references either a message or a story, never both.
type RecentPostID struct {
	Message FullMsgID
	Story   FullStoryID
}

func (id RecentPostID) Valid() bool {
	return id.Message.Valid() || id.Story.Valid()
}

func (id RecentPostID) String() string {
	if id.Story.Valid() {
		return id.Story.String()
	}

	return id.Message.String()
}

// FlattenUser, FlattenChat and FlattenChannel convert backend entity ids
// to the single telegram.ID space: users keep their id, basic chats are
// negated, channel ids are shifted below -1e12.
func FlattenUser(id int64) telegram.ID {
	return telegram.ID(id)
}

func FlattenChat(id int64) telegram.ID {
	return telegram.ID(-id)
}

func FlattenChannel(id int64) telegram.ID {
	return telegram.ID(-1000000000000 - id)
}

// User is a backend user entity reduced to the fields this module and
// its stores care about. Raw keeps the payload as received.
type User struct {
	ID         telegram.ID
	AccessHash int64
	FirstName  string
	LastName   string
	Username   telegram.Username
	Raw        json.RawMessage
}

func (u User) Name() string {
	if u.LastName == "" {
		return u.FirstName
	}

	return u.FirstName + " " + u.LastName
}

// Chat is a backend chat or channel entity, with ID already flattened.
type Chat struct {
	ID         telegram.ID
	AccessHash int64
	Title      string
	Username   telegram.Username
	Raw        json.RawMessage
}

// Message is a backend message entity. Peer is the flattened id of the
// chat the message belongs to. A zero Date marks a message which must
// not be exposed in pagination results.
type Message struct {
	ID        MsgID
	Peer      telegram.ID
	Date      int64
	Views     int
	Forwards  int
	Reactions int
	Raw       json.RawMessage
}

func (m Message) FullID() FullMsgID {
	return FullMsgID{Peer: m.Peer, Msg: m.ID}
}

// Peer is the entity store's answer to a peer resolution request.
type Peer struct {
	ID         telegram.ID
	AccessHash int64
	Name       string
}
