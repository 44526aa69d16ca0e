package tgstats

import (
	"encoding/json"

	"github.com/jfk9w-go/flu"
	telegram "github.com/jfk9w-go/telegram-bot-api"
	"github.com/pkg/errors"
)

// Payloads arrive from the Transport as raw bytes and are decoded here
// as JSON-coded TL objects with a "_" constructor discriminator.
// Unknown constructors inside lists are skipped; an unexpected
// top-level constructor is a decode error.

func decodePayload(payload []byte, constructor string, value any) error {
	var envelope struct {
		Type string `json:"_"`
	}

	if err := flu.DecodeFrom(flu.Bytes(payload), flu.JSON(&envelope)); err != nil {
		return errors.Wrap(err, "decode constructor")
	}

	if envelope.Type != "" && envelope.Type != constructor {
		return errors.Errorf("unexpected constructor [%s], want [%s]", envelope.Type, constructor)
	}

	return errors.Wrapf(flu.DecodeFrom(flu.Bytes(payload), flu.JSON(value)), "decode %s", constructor)
}

type dateRange struct {
	MinDate int64 `json:"min_date"`
	MaxDate int64 `json:"max_date"`
}

type absValueAndPrev struct {
	Current  float64 `json:"current"`
	Previous float64 `json:"previous"`
}

func (v absValueAndPrev) value() StatisticalValue {
	return StatisticalValue{
		Value:                v.Current,
		Previous:             v.Previous,
		GrowthRatePercentage: GrowthRate(v.Current, v.Previous),
	}
}

type percentValue struct {
	Part  float64 `json:"part"`
	Total float64 `json:"total"`
}

type broadcastStats struct {
	Period dateRange `json:"period"`

	Followers         absValueAndPrev `json:"followers"`
	ViewsPerPost      absValueAndPrev `json:"views_per_post"`
	SharesPerPost     absValueAndPrev `json:"shares_per_post"`
	ReactionsPerPost  absValueAndPrev `json:"reactions_per_post"`
	ViewsPerStory     absValueAndPrev `json:"views_per_story"`
	SharesPerStory    absValueAndPrev `json:"shares_per_story"`
	ReactionsPerStory absValueAndPrev `json:"reactions_per_story"`

	EnabledNotifications percentValue `json:"enabled_notifications"`

	GrowthGraph                  graphPayload `json:"growth_graph"`
	FollowersGraph               graphPayload `json:"followers_graph"`
	MuteGraph                    graphPayload `json:"mute_graph"`
	TopHoursGraph                graphPayload `json:"top_hours_graph"`
	InteractionsGraph            graphPayload `json:"interactions_graph"`
	IVInteractionsGraph          graphPayload `json:"iv_interactions_graph"`
	ViewsBySourceGraph           graphPayload `json:"views_by_source_graph"`
	NewFollowersBySourceGraph    graphPayload `json:"new_followers_by_source_graph"`
	LanguagesGraph               graphPayload `json:"languages_graph"`
	ReactionsByEmotionGraph      graphPayload `json:"reactions_by_emotion_graph"`
	StoryInteractionsGraph       graphPayload `json:"story_interactions_graph"`
	StoryReactionsByEmotionGraph graphPayload `json:"story_reactions_by_emotion_graph"`

	RecentPostsInteractions []json.RawMessage `json:"recent_posts_interactions"`
}

type groupTopPoster struct {
	UserID   int64 `json:"user_id"`
	Messages int   `json:"messages"`
	AvgChars int   `json:"avg_chars"`
}

type groupTopAdmin struct {
	UserID  int64 `json:"user_id"`
	Deleted int   `json:"deleted"`
	Kicked  int   `json:"kicked"`
	Banned  int   `json:"banned"`
}

type groupTopInviter struct {
	UserID      int64 `json:"user_id"`
	Invitations int   `json:"invitations"`
}

type megagroupStats struct {
	Period dateRange `json:"period"`

	Members  absValueAndPrev `json:"members"`
	Messages absValueAndPrev `json:"messages"`
	Viewers  absValueAndPrev `json:"viewers"`
	Posters  absValueAndPrev `json:"posters"`

	GrowthGraph             graphPayload `json:"growth_graph"`
	MembersGraph            graphPayload `json:"members_graph"`
	NewMembersBySourceGraph graphPayload `json:"new_members_by_source_graph"`
	LanguagesGraph          graphPayload `json:"languages_graph"`
	MessagesGraph           graphPayload `json:"messages_graph"`
	ActionsGraph            graphPayload `json:"actions_graph"`
	TopHoursGraph           graphPayload `json:"top_hours_graph"`
	WeekdaysGraph           graphPayload `json:"weekdays_graph"`

	TopPosters  []groupTopPoster  `json:"top_posters"`
	TopAdmins   []groupTopAdmin   `json:"top_admins"`
	TopInviters []groupTopInviter `json:"top_inviters"`

	Users []json.RawMessage `json:"users"`
}

type postStats struct {
	ViewsGraph              graphPayload `json:"views_graph"`
	ReactionsByEmotionGraph graphPayload `json:"reactions_by_emotion_graph"`
}

// postInteractionCounters decodes the PostInteractionCounters union.
type postInteractionCounters struct {
	MsgID     MsgID
	StoryID   StoryID
	Views     int
	Forwards  int
	Reactions int
}

func (c *postInteractionCounters) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Type      string  `json:"_"`
		MsgID     MsgID   `json:"msg_id"`
		StoryID   StoryID `json:"story_id"`
		Views     int     `json:"views"`
		Forwards  int     `json:"forwards"`
		Reactions int     `json:"reactions"`
	}

	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	switch envelope.Type {
	case "postInteractionCountersMessage":
		c.MsgID = envelope.MsgID
	case "postInteractionCountersStory":
		c.StoryID = envelope.StoryID
	default:
		return errors.Errorf("unknown interaction counters constructor [%s]", envelope.Type)
	}

	c.Views = envelope.Views
	c.Forwards = envelope.Forwards
	c.Reactions = envelope.Reactions
	return nil
}

func (c postInteractionCounters) info() MessageInteractionInfo {
	return MessageInteractionInfo{
		MessageID: c.MsgID,
		StoryID:   c.StoryID,
		Views:     c.Views,
		Forwards:  c.Forwards,
		Reactions: c.Reactions,
	}
}

// peerData decodes the Peer union into a flattened telegram.ID.
type peerData struct {
	ID telegram.ID
}

func (p *peerData) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Type      string `json:"_"`
		UserID    int64  `json:"user_id"`
		ChatID    int64  `json:"chat_id"`
		ChannelID int64  `json:"channel_id"`
	}

	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	switch envelope.Type {
	case "peerUser":
		p.ID = FlattenUser(envelope.UserID)
	case "peerChat":
		p.ID = FlattenChat(envelope.ChatID)
	case "peerChannel":
		p.ID = FlattenChannel(envelope.ChannelID)
	default:
		return errors.Errorf("unknown peer constructor [%s]", envelope.Type)
	}

	return nil
}

// messageData decodes the Message union. All three constructors carry
// an id; service messages keep their peer and date, empty ones do not.
type messageData struct {
	ID        MsgID
	Peer      telegram.ID
	Date      int64
	Views     int
	Forwards  int
	Reactions int
	Service   bool
	Empty     bool
	Raw       json.RawMessage
}

func (m *messageData) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Type      string    `json:"_"`
		ID        MsgID     `json:"id"`
		PeerID    *peerData `json:"peer_id"`
		Date      int64     `json:"date"`
		Views     int       `json:"views"`
		Forwards  int       `json:"forwards"`
		Reactions *struct {
			Results []struct {
				Count int `json:"count"`
			} `json:"results"`
		} `json:"reactions"`
	}

	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	switch envelope.Type {
	case "message":
	case "messageService":
		m.Service = true
	case "messageEmpty":
		m.Empty = true
	default:
		return errors.Errorf("unknown message constructor [%s]", envelope.Type)
	}

	m.ID = envelope.ID
	if envelope.PeerID != nil {
		m.Peer = envelope.PeerID.ID
	}

	m.Date = envelope.Date
	if !m.Service && !m.Empty {
		m.Views = envelope.Views
		m.Forwards = envelope.Forwards
		if envelope.Reactions != nil {
			for _, result := range envelope.Reactions.Results {
				m.Reactions += result.Count
			}
		}
	}

	m.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (m messageData) entity() Message {
	return Message{
		ID:        m.ID,
		Peer:      m.Peer,
		Date:      m.Date,
		Views:     m.Views,
		Forwards:  m.Forwards,
		Reactions: m.Reactions,
		Raw:       m.Raw,
	}
}

func (m messageData) info() MessageInteractionInfo {
	if m.Service || m.Empty {
		return MessageInteractionInfo{}
	}

	return MessageInteractionInfo{
		MessageID: m.ID,
		Views:     m.Views,
		Forwards:  m.Forwards,
		Reactions: m.Reactions,
	}
}

// messagesPayload decodes the messages.Messages union.
type messagesPayload struct {
	Kind     string
	Count    int
	NextRate *int
	Messages []json.RawMessage
	Chats    []json.RawMessage
	Users    []json.RawMessage
}

const (
	messagesFull        = "messages.messages"
	messagesSlice       = "messages.messagesSlice"
	messagesChannel     = "messages.channelMessages"
	messagesNotModified = "messages.messagesNotModified"
)

func (p *messagesPayload) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Type     string            `json:"_"`
		Count    int               `json:"count"`
		NextRate *int              `json:"next_rate"`
		Messages []json.RawMessage `json:"messages"`
		Chats    []json.RawMessage `json:"chats"`
		Users    []json.RawMessage `json:"users"`
	}

	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	switch envelope.Type {
	case messagesFull, messagesSlice, messagesChannel, messagesNotModified:
	default:
		return errors.Errorf("unknown messages constructor [%s]", envelope.Type)
	}

	p.Kind = envelope.Type
	p.Count = envelope.Count
	p.NextRate = envelope.NextRate
	p.Messages = envelope.Messages
	p.Chats = envelope.Chats
	p.Users = envelope.Users
	return nil
}

// publicForward decodes the PublicForward union.
type publicForward struct {
	Message *messageData
	Story   *FullStoryID
}

func (f *publicForward) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Type    string          `json:"_"`
		Message *messageData    `json:"message"`
		Peer    *peerData       `json:"peer"`
		Story   json.RawMessage `json:"story"`
	}

	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	switch envelope.Type {
	case "publicForwardMessage":
		f.Message = envelope.Message
	case "publicForwardStory":
		var story storyItemData
		if err := json.Unmarshal(envelope.Story, &story); err != nil || story.Skipped {
			return nil
		}

		var peer telegram.ID
		if envelope.Peer != nil {
			peer = envelope.Peer.ID
		}

		f.Story = &FullStoryID{Peer: peer, Story: story.ID}
	default:
		return errors.Errorf("unknown public forward constructor [%s]", envelope.Type)
	}

	return nil
}

type publicForwardsPayload struct {
	Count      int               `json:"count"`
	NextOffset *string           `json:"next_offset"`
	Forwards   []json.RawMessage `json:"forwards"`
	Chats      []json.RawMessage `json:"chats"`
	Users      []json.RawMessage `json:"users"`
}

// storyItemData decodes the StoryItem union. Deleted and skipped
// variants carry no counters and are marked Skipped.
type storyItemData struct {
	ID      StoryID
	Date    int64
	Views   int
	Forward int
	React   int
	HasInfo bool
	Skipped bool
}

func (s *storyItemData) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Type  string  `json:"_"`
		ID    StoryID `json:"id"`
		Date  int64   `json:"date"`
		Views *struct {
			ViewsCount     int `json:"views_count"`
			ForwardsCount  int `json:"forwards_count"`
			ReactionsCount int `json:"reactions_count"`
		} `json:"views"`
	}

	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	switch envelope.Type {
	case "storyItem":
	case "storyItemDeleted", "storyItemSkipped":
		s.Skipped = true
	default:
		return errors.Errorf("unknown story constructor [%s]", envelope.Type)
	}

	s.ID = envelope.ID
	s.Date = envelope.Date
	if envelope.Views != nil {
		s.HasInfo = true
		s.Views = envelope.Views.ViewsCount
		s.Forward = envelope.Views.ForwardsCount
		s.React = envelope.Views.ReactionsCount
	}

	return nil
}

func (s storyItemData) info() MessageInteractionInfo {
	if s.Skipped || !s.HasInfo {
		return MessageInteractionInfo{}
	}

	return MessageInteractionInfo{
		StoryID:   s.ID,
		Views:     s.Views,
		Forwards:  s.Forward,
		Reactions: s.React,
	}
}

type storiesPayload struct {
	Count   int               `json:"count"`
	Stories []json.RawMessage `json:"stories"`
	Chats   []json.RawMessage `json:"chats"`
	Users   []json.RawMessage `json:"users"`
}

type prepaidGiveaway struct {
	ID       int64 `json:"id"`
	Months   int   `json:"months"`
	Quantity int   `json:"quantity"`
	Date     int64 `json:"date"`
}

type boostsStatus struct {
	Level              int               `json:"level"`
	CurrentLevelBoosts int               `json:"current_level_boosts"`
	Boosts             int               `json:"boosts"`
	GiftBoosts         int               `json:"gift_boosts"`
	NextLevelBoosts    *int              `json:"next_level_boosts"`
	PremiumAudience    *percentValue     `json:"premium_audience"`
	BoostURL           string            `json:"boost_url"`
	PrepaidGiveaways   []prepaidGiveaway `json:"prepaid_giveaways"`
	MyBoostSlots       []int             `json:"my_boost_slots"`
}

type boostData struct {
	Gift          bool   `json:"gift"`
	Giveaway      bool   `json:"giveaway"`
	Unclaimed     bool   `json:"unclaimed"`
	ID            string `json:"id"`
	UserID        int64  `json:"user_id"`
	GiveawayMsgID MsgID  `json:"giveaway_msg_id"`
	Date          int64  `json:"date"`
	Expires       int64  `json:"expires"`
	UsedGiftSlug  string `json:"used_gift_slug"`
	Multiplier    int    `json:"multiplier"`
}

type boostsList struct {
	Count      int               `json:"count"`
	Boosts     []json.RawMessage `json:"boosts"`
	NextOffset *string           `json:"next_offset"`
	Users      []json.RawMessage `json:"users"`
}

// userData decodes the User union. Only the "user" constructor is
// merged into the store.
type userData struct {
	ID         int64             `json:"id"`
	AccessHash int64             `json:"access_hash"`
	FirstName  string            `json:"first_name"`
	LastName   string            `json:"last_name"`
	Username   telegram.Username `json:"username"`
}

// chatData decodes the Chat union: chats, channels and their
// forbidden variants. Others are skipped.
type chatData struct {
	ID         telegram.ID
	AccessHash int64
	Title      string
	Username   telegram.Username
}

func (c *chatData) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Type       string            `json:"_"`
		ID         int64             `json:"id"`
		AccessHash int64             `json:"access_hash"`
		Title      string            `json:"title"`
		Username   telegram.Username `json:"username"`
	}

	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	switch envelope.Type {
	case "chat", "chatForbidden":
		c.ID = FlattenChat(envelope.ID)
	case "channel", "channelForbidden":
		c.ID = FlattenChannel(envelope.ID)
	default:
		return errors.Errorf("unknown chat constructor [%s]", envelope.Type)
	}

	c.AccessHash = envelope.AccessHash
	c.Title = envelope.Title
	c.Username = envelope.Username
	return nil
}

func decodeUsers(list []json.RawMessage) []User {
	users := make([]User, 0, len(list))
	for _, raw := range list {
		var envelope struct {
			Type string `json:"_"`
		}

		if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Type != "user" {
			continue
		}

		var data userData
		if err := json.Unmarshal(raw, &data); err != nil {
			continue
		}

		users = append(users, User{
			ID:         FlattenUser(data.ID),
			AccessHash: data.AccessHash,
			FirstName:  data.FirstName,
			LastName:   data.LastName,
			Username:   data.Username,
			Raw:        raw,
		})
	}

	return users
}

func decodeChats(list []json.RawMessage) []Chat {
	chats := make([]Chat, 0, len(list))
	for _, raw := range list {
		var data chatData
		if err := json.Unmarshal(raw, &data); err != nil {
			continue
		}

		chats = append(chats, Chat{
			ID:         data.ID,
			AccessHash: data.AccessHash,
			Title:      data.Title,
			Username:   data.Username,
			Raw:        raw,
		})
	}

	return chats
}
