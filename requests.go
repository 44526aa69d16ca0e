package tgstats

import telegram "github.com/jfk9w-go/telegram-bot-api"

// Request is a typed RPC argument set. Method returns the backend
// method name; the rest of the struct is the JSON-coded argument
// object a Transport is expected to submit as is.
type Request interface {
	Method() string
}

type InputChannel struct {
	ChannelID  int64 `json:"channel_id"`
	AccessHash int64 `json:"access_hash"`
}

type InputPeer struct {
	Type       string `json:"_"`
	UserID     int64  `json:"user_id,omitempty"`
	ChatID     int64  `json:"chat_id,omitempty"`
	ChannelID  int64  `json:"channel_id,omitempty"`
	AccessHash int64  `json:"access_hash,omitempty"`
}

func emptyPeer() InputPeer {
	return InputPeer{Type: "inputPeerEmpty"}
}

func inputPeer(id telegram.ID, accessHash int64) InputPeer {
	switch {
	case id > 0:
		return InputPeer{Type: "inputPeerUser", UserID: int64(id), AccessHash: accessHash}
	case id > FlattenChannel(0):
		return InputPeer{Type: "inputPeerChat", ChatID: -int64(id)}
	default:
		return InputPeer{Type: "inputPeerChannel", ChannelID: -1000000000000 - int64(id), AccessHash: accessHash}
	}
}

func (r ChannelRef) input() InputChannel {
	return InputChannel{ChannelID: -1000000000000 - int64(r.ID), AccessHash: r.AccessHash}
}

func (r ChannelRef) inputPeer() InputPeer {
	return inputPeer(r.ID, r.AccessHash)
}

func (p Peer) input() InputPeer {
	return inputPeer(p.ID, p.AccessHash)
}

type GetBroadcastStats struct {
	Channel InputChannel `json:"channel"`
	Dark    bool         `json:"dark,omitempty"`
}

func (GetBroadcastStats) Method() string { return "stats.getBroadcastStats" }

type GetMegagroupStats struct {
	Channel InputChannel `json:"channel"`
	Dark    bool         `json:"dark,omitempty"`
}

func (GetMegagroupStats) Method() string { return "stats.getMegagroupStats" }

type LoadAsyncGraph struct {
	Token string `json:"token"`
	X     int64  `json:"x,omitempty"`
}

func (LoadAsyncGraph) Method() string { return "stats.loadAsyncGraph" }

type GetMessagePublicForwards struct {
	Channel    InputChannel `json:"channel"`
	MsgID      MsgID        `json:"msg_id"`
	OffsetRate int          `json:"offset_rate"`
	OffsetPeer InputPeer    `json:"offset_peer"`
	OffsetID   MsgID        `json:"offset_id"`
	Limit      int          `json:"limit"`
}

func (GetMessagePublicForwards) Method() string { return "stats.getMessagePublicForwards" }

type GetStoryPublicForwards struct {
	Peer   InputPeer `json:"peer"`
	ID     StoryID   `json:"id"`
	Offset string    `json:"offset"`
	Limit  int       `json:"limit"`
}

func (GetStoryPublicForwards) Method() string { return "stats.getStoryPublicForwards" }

type GetMessageStats struct {
	Channel InputChannel `json:"channel"`
	MsgID   MsgID        `json:"msg_id"`
	Dark    bool         `json:"dark,omitempty"`
}

func (GetMessageStats) Method() string { return "stats.getMessageStats" }

type GetStoryStats struct {
	Peer InputPeer `json:"peer"`
	ID   StoryID   `json:"id"`
	Dark bool      `json:"dark,omitempty"`
}

func (GetStoryStats) Method() string { return "stats.getStoryStats" }

type GetMessages struct {
	Channel InputChannel `json:"channel"`
	ID      []MsgID      `json:"id"`
}

func (GetMessages) Method() string { return "channels.getMessages" }

type GetStoriesByID struct {
	Peer InputPeer `json:"peer"`
	ID   []StoryID `json:"id"`
}

func (GetStoriesByID) Method() string { return "stories.getStoriesByID" }

type GetBoostsStatus struct {
	Peer InputPeer `json:"peer"`
}

func (GetBoostsStatus) Method() string { return "premium.getBoostsStatus" }

type GetBoostsList struct {
	Gifts  bool      `json:"gifts,omitempty"`
	Peer   InputPeer `json:"peer"`
	Offset string    `json:"offset"`
	Limit  int       `json:"limit"`
}

func (GetBoostsList) Method() string { return "premium.getBoostsList" }
