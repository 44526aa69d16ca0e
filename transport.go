package tgstats

import (
	"context"

	telegram "github.com/jfk9w-go/telegram-bot-api"
)

// Transport submits typed requests to the backend and keeps the
// per-shard registry of outstanding statistics calls alive.
type Transport interface {

	// Send submits req to the given shard. Exactly one of done or fail
	// is eventually invoked with the raw response payload or the RPC
	// error, unless the underlying call is dropped before completion.
	// The returned handle identifies the call while it is in flight.
	Send(ctx context.Context, req Request, shard ShardID, done func(payload []byte), fail func(err error)) Handle

	// Pending reports whether the call identified by handle is still
	// in flight.
	Pending(handle Handle) bool

	// RegisterOutstanding attributes an in-flight call to a statistics
	// shard, keeping the shard connection alive while the call runs.
	RegisterOutstanding(shard ShardID, handle Handle)

	// UnregisterOutstanding removes the attribution. Callers guarantee
	// at most one invocation per registered pair.
	UnregisterOutstanding(shard ShardID, handle Handle)

	// StatsShard returns the shard serving statistics requests for the
	// channel, or ShardNone when they go to the home shard untracked.
	StatsShard(channel ChannelRef) ShardID
}

// EntityStore keeps entities carried by statistics responses and
// resolves peers referenced by pagination cursors and page items.
type EntityStore interface {
	MergeUsers(ctx context.Context, users []User) error
	MergeChats(ctx context.Context, chats []Chat) error
	MergeMessage(ctx context.Context, message Message) error

	// ResolvePeer returns the merged peer, or nil when the id is not
	// known to the store.
	ResolvePeer(ctx context.Context, id telegram.ID) (*Peer, error)
}
