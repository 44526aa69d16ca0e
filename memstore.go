package tgstats

import (
	"context"

	"github.com/jfk9w-go/flu/syncf"
	telegram "github.com/jfk9w-go/telegram-bot-api"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// MemoryStore is an EntityStore keeping merged entities in memory.
type MemoryStore struct {
	mu       syncf.RWMutex
	users    map[telegram.ID]User
	chats    map[telegram.ID]Chat
	messages map[FullMsgID]Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[telegram.ID]User),
		chats:    make(map[telegram.ID]Chat),
		messages: make(map[FullMsgID]Message),
	}
}

// MergeUsers upserts users by id. A zero incoming access hash keeps
// the stored one, since reduced entities omit it.
func (s *MemoryStore) MergeUsers(ctx context.Context, users []User) error {
	ctx, cancel := s.mu.Lock(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	defer cancel()

	for _, user := range users {
		if old, ok := s.users[user.ID]; ok && user.AccessHash == 0 {
			user.AccessHash = old.AccessHash
		}

		s.users[user.ID] = user
	}

	return nil
}

// MergeChats upserts chats by id. A zero incoming access hash keeps
// the stored one.
func (s *MemoryStore) MergeChats(ctx context.Context, chats []Chat) error {
	ctx, cancel := s.mu.Lock(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	defer cancel()

	for _, chat := range chats {
		if old, ok := s.chats[chat.ID]; ok && chat.AccessHash == 0 {
			chat.AccessHash = old.AccessHash
		}

		s.chats[chat.ID] = chat
	}

	return nil
}

// MergeMessage upserts a message by its full id. Messages without a
// valid full id are dropped.
func (s *MemoryStore) MergeMessage(ctx context.Context, message Message) error {
	if !message.FullID().Valid() {
		return nil
	}

	ctx, cancel := s.mu.Lock(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	defer cancel()

	s.messages[message.FullID()] = message
	return nil
}

// ResolvePeer reports the stored user or chat with the given id, nil
// when neither is known.
func (s *MemoryStore) ResolvePeer(ctx context.Context, id telegram.ID) (*Peer, error) {
	ctx, cancel := s.mu.RLock(ctx)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	defer cancel()

	if user, ok := s.users[id]; ok {
		return &Peer{ID: id, AccessHash: user.AccessHash, Name: user.Name()}, nil
	}

	if chat, ok := s.chats[id]; ok {
		return &Peer{ID: id, AccessHash: chat.AccessHash, Name: chat.Title}, nil
	}

	return nil, nil
}

// Users returns stored users sorted by id.
func (s *MemoryStore) Users() []User {
	_, cancel := s.mu.RLock(context.Background())
	defer cancel()

	users := maps.Values(s.users)
	slices.SortFunc(users, func(a, b User) bool { return a.ID < b.ID })
	return users
}

// Chats returns stored chats sorted by id.
func (s *MemoryStore) Chats() []Chat {
	_, cancel := s.mu.RLock(context.Background())
	defer cancel()

	chats := maps.Values(s.chats)
	slices.SortFunc(chats, func(a, b Chat) bool { return a.ID < b.ID })
	return chats
}

// Messages returns stored messages sorted by peer, then message id.
func (s *MemoryStore) Messages() []Message {
	_, cancel := s.mu.RLock(context.Background())
	defer cancel()

	messages := maps.Values(s.messages)
	slices.SortFunc(messages, func(a, b Message) bool {
		if a.Peer != b.Peer {
			return a.Peer < b.Peer
		}

		return a.ID < b.ID
	})

	return messages
}
