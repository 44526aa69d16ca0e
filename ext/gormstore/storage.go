// Package gormstore persists entities carried by statistics responses
// in a SQL database and keeps an archive of statistics snapshots, so
// counters may be tracked over time.
package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jfk9w-go/flu/gormf"
	"github.com/jfk9w-go/flu/syncf"
	telegram "github.com/jfk9w-go/telegram-bot-api"
	tgstats "github.com/jfk9w-go/telegram-stats-api"
	"github.com/pkg/errors"
	null "gopkg.in/guregu/null.v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Snapshot kinds recognized by the archive.
const (
	KindChannel    = "channel"
	KindSupergroup = "supergroup"
	KindPost       = "post"
	KindBoosts     = "boosts"
)

// User is a stored backend user entity.
type User struct {
	ID         telegram.ID `gorm:"primaryKey"`
	AccessHash int64       `gorm:"not null"`
	FirstName  string      `gorm:"not null"`
	LastName   string      `gorm:"not null"`
	Username   null.String
	Raw        gormf.JSONB
	UpdatedAt  time.Time `gorm:"not null"`
}

func (u *User) TableName() string {
	return "tg_user"
}

// Chat is a stored backend chat or channel entity.
type Chat struct {
	ID         telegram.ID `gorm:"primaryKey"`
	AccessHash int64       `gorm:"not null"`
	Title      string      `gorm:"not null"`
	Username   null.String
	Raw        gormf.JSONB
	UpdatedAt  time.Time `gorm:"not null"`
}

func (c *Chat) TableName() string {
	return "tg_chat"
}

// Message is a stored backend message entity with interaction counters.
type Message struct {
	Peer      telegram.ID   `gorm:"primaryKey;column:peer_id"`
	Msg       tgstats.MsgID `gorm:"primaryKey;column:msg_id"`
	Date      int64         `gorm:"not null"`
	Views     int           `gorm:"not null"`
	Forwards  int           `gorm:"not null"`
	Reactions int           `gorm:"not null"`
	Raw       gormf.JSONB
	UpdatedAt time.Time `gorm:"not null"`
}

func (m *Message) TableName() string {
	return "tg_message"
}

// Snapshot is one archived statistics snapshot of a channel.
type Snapshot struct {
	ID      uuid.UUID   `gorm:"primaryKey;type:uuid"`
	Channel telegram.ID `gorm:"not null;index:idx_snapshot"`
	Kind    string      `gorm:"not null;index:idx_snapshot"`
	TakenAt time.Time   `gorm:"not null;index"`
	Data    gormf.JSONB
}

func (s *Snapshot) TableName() string {
	return "tg_snapshot"
}

// SQL is a tgstats.EntityStore backed by a SQL database.
type SQL struct {
	Clock syncf.Clock
	DB    *gorm.DB
}

// Open connects to a PostgreSQL database, migrates the schema and
// returns a ready store.
func Open(ctx context.Context, clock syncf.Clock, dsn string) (*SQL, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormf.LogfLogger(clock, "gorm.sql")})
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}

	sql := &SQL{Clock: clock, DB: db}
	if err := sql.Init(ctx); err != nil {
		return nil, err
	}

	return sql, nil
}

// Init creates or migrates the database schema.
func (s *SQL) Init(ctx context.Context) error {
	err := s.DB.WithContext(ctx).AutoMigrate(new(User), new(Chat), new(Message), new(Snapshot))
	return errors.Wrap(err, "auto-migrate")
}

func (s *SQL) Close() error {
	db, err := s.DB.DB()
	if err != nil {
		return err
	}

	return db.Close()
}

// MergeUsers upserts users by id.
func (s *SQL) MergeUsers(ctx context.Context, users []tgstats.User) error {
	if len(users) == 0 {
		return nil
	}

	now := s.Clock.Now()
	rows := make([]User, len(users))
	for i, user := range users {
		rows[i] = User{
			ID:         user.ID,
			AccessHash: user.AccessHash,
			FirstName:  user.FirstName,
			LastName:   user.LastName,
			Username:   null.NewString(string(user.Username), user.Username != ""),
			Raw:        jsonb(user.Raw),
			UpdatedAt:  now,
		}
	}

	update := mergeSet("tg_user", "first_name", "last_name", "username", "raw", "updated_at")
	return s.DB.WithContext(ctx).
		Clauses(gormf.OnConflictClause(rows, "primaryKey", false, update)).
		Create(rows).
		Error
}

// MergeChats upserts chats by id.
func (s *SQL) MergeChats(ctx context.Context, chats []tgstats.Chat) error {
	if len(chats) == 0 {
		return nil
	}

	now := s.Clock.Now()
	rows := make([]Chat, len(chats))
	for i, chat := range chats {
		rows[i] = Chat{
			ID:         chat.ID,
			AccessHash: chat.AccessHash,
			Title:      chat.Title,
			Username:   null.NewString(string(chat.Username), chat.Username != ""),
			Raw:        jsonb(chat.Raw),
			UpdatedAt:  now,
		}
	}

	update := mergeSet("tg_chat", "title", "username", "raw", "updated_at")
	return s.DB.WithContext(ctx).
		Clauses(gormf.OnConflictClause(rows, "primaryKey", false, update)).
		Create(rows).
		Error
}

// MergeMessage upserts a message by its full id. Messages without a
// valid full id are dropped.
func (s *SQL) MergeMessage(ctx context.Context, message tgstats.Message) error {
	if !message.FullID().Valid() {
		return nil
	}

	row := &Message{
		Peer:      message.Peer,
		Msg:       message.ID,
		Date:      message.Date,
		Views:     message.Views,
		Forwards:  message.Forwards,
		Reactions: message.Reactions,
		Raw:       jsonb(message.Raw),
		UpdatedAt: s.Clock.Now(),
	}

	return s.DB.WithContext(ctx).
		Clauses(gormf.OnConflictClause(row, "primaryKey", true, nil)).
		Create(row).
		Error
}

// ResolvePeer reports the stored user or chat with the given id, nil
// when neither is known.
func (s *SQL) ResolvePeer(ctx context.Context, id telegram.ID) (*tgstats.Peer, error) {
	var user User
	err := s.DB.WithContext(ctx).First(&user, "id = ?", id).Error
	if err == nil {
		name := tgstats.User{FirstName: user.FirstName, LastName: user.LastName}.Name()
		return &tgstats.Peer{ID: id, AccessHash: user.AccessHash, Name: name}, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var chat Chat
	err = s.DB.WithContext(ctx).First(&chat, "id = ?", id).Error
	if err == nil {
		return &tgstats.Peer{ID: id, AccessHash: chat.AccessHash, Name: chat.Title}, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	return nil, nil
}

// SaveSnapshot archives value as a snapshot of the given kind.
func (s *SQL) SaveSnapshot(ctx context.Context, channel telegram.ID, kind string, value any) error {
	data, err := gormf.ToJSONB(value)
	if err != nil {
		return errors.Wrap(err, "marshal")
	}

	row := &Snapshot{
		ID:      uuid.Must(uuid.NewV4()),
		Channel: channel,
		Kind:    kind,
		TakenAt: s.Clock.Now(),
		Data:    data,
	}

	return s.DB.WithContext(ctx).Create(row).Error
}

// Snapshots returns archived snapshots of the given kind taken at or
// after since, oldest first.
func (s *SQL) Snapshots(ctx context.Context, channel telegram.ID, kind string, since time.Time) ([]Snapshot, error) {
	snapshots := make([]Snapshot, 0)
	err := s.DB.WithContext(ctx).
		Where("channel = ? and kind = ? and taken_at >= ?", channel, kind, since).
		Order("taken_at asc").
		Find(&snapshots).
		Error

	return snapshots, err
}

// jsonb wraps a raw payload for storage. Empty payloads become the
// JSON null literal: JSONB does not scan SQL NULL back.
func jsonb(raw json.RawMessage) gormf.JSONB {
	if len(raw) == 0 {
		return gormf.JSONB("null")
	}

	return gormf.JSONB(raw)
}

// mergeSet is the upsert assignment list for entity rows. The stored
// access hash wins over a zero incoming one, since reduced entities
// omit it.
func mergeSet(table string, columns ...string) clause.Set {
	keepHash := clause.Assignment{
		Column: clause.Column{Name: "access_hash"},
		Value:  gorm.Expr(fmt.Sprintf("case when excluded.access_hash = 0 then %s.access_hash else excluded.access_hash end", table)),
	}

	return append(clause.AssignmentColumns(columns), keepHash)
}
