package tgstats

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jfk9w-go/flu/logf"
	"github.com/jfk9w-go/flu/syncf"
	"github.com/pkg/errors"
)

// Boosts assembles the boost status of a channel: the overview
// counters, prepaid giveaways and the first pages of the boost and
// gift boost lists. Gift and non-gift boosts page through separate
// offset token lineages.
type Boosts struct {
	sender *sender

	// all guarded by sender.mu
	busy          bool
	lastTotal     int
	lastGiftTotal int
	status        *BoostStatus
}

func (s *Boosts) String() string {
	return "tgstats.boosts"
}

// Request fetches a fresh BoostStatus: the status counters first, then
// the first boost page and the first gift boost page.
func (s *Boosts) Request(ctx context.Context) syncf.Ref[BoostStatus] {
	promise := new(syncf.Var[BoostStatus])
	if s.sender.channel.ID >= FlattenChannel(0) {
		_ = syncf.Failure[BoostStatus](ctx, promise, errors.WithStack(ErrUnsupportedPeer))
		return promise
	}

	req := GetBoostsStatus{Peer: s.sender.channel.inputPeer()}
	s.sender.send(ctx, req,
		func(payload []byte) {
			var data boostsStatus
			if err := decodePayload(payload, "premium.boostsStatus", &data); err != nil {
				_ = syncf.Failure[BoostStatus](ctx, promise, err)
				logf.Get(s).Warnf(ctx, "boost status for [%s]: %v", s.sender.channel, err)
				return
			}

			s.requestFirstSlices(ctx, promise, data)
		},
		func(err error) {
			_ = syncf.Failure[BoostStatus](ctx, promise, err)
		})

	return promise
}

func (s *Boosts) requestFirstSlices(ctx context.Context, promise *syncf.Var[BoostStatus], status boostsStatus) {
	err := s.requestList(ctx, BoostsOffsetToken{}, func(boosts BoostsListSlice, err error) {
		if err != nil {
			_ = syncf.Failure[BoostStatus](ctx, promise, err)
			return
		}

		err = s.requestList(ctx, BoostsOffsetToken{Gifts: true}, func(gifts BoostsListSlice, err error) {
			if err != nil {
				_ = syncf.Failure[BoostStatus](ctx, promise, err)
				return
			}

			value := BoostStatus{
				Overview:         status.overview(),
				Link:             status.BoostURL,
				PrepaidGiveaways: status.giveaways(),
				FirstSliceBoosts: boosts,
				FirstSliceGifts:  gifts,
			}

			if err := s.sender.update(ctx, func() { s.status = &value }); err != nil {
				_ = syncf.Failure[BoostStatus](ctx, promise, err)
				return
			}

			_ = syncf.Success(ctx, promise, value)
			logf.Get(s).Debugf(ctx, "assembled boost status for [%s]", s.sender.channel)
		})
		if err != nil {
			_ = syncf.Failure[BoostStatus](ctx, promise, err)
		}
	})
	if err != nil {
		_ = syncf.Failure[BoostStatus](ctx, promise, err)
	}
}

// RequestBoosts fetches one boost list page at the given token. The
// zero token requests the first page of the non-gift lineage. The done
// callback receives the page unless the fetch fails or the session is
// closed; a fetch already in flight makes the call a no-op.
func (s *Boosts) RequestBoosts(ctx context.Context, token BoostsOffsetToken, done func(BoostsListSlice)) {
	_ = s.requestList(ctx, token, func(slice BoostsListSlice, err error) {
		if err == nil {
			done(slice)
		}
	})
}

func (s *Boosts) requestList(ctx context.Context, token BoostsOffsetToken, done func(BoostsListSlice, error)) error {
	if err := s.begin(ctx); err != nil {
		return err
	}

	req := GetBoostsList{
		Gifts:  token.Gifts,
		Peer:   s.sender.channel.inputPeer(),
		Offset: token.Next,
		Limit:  s.sender.config.boostsLimit(token.Next),
	}

	s.sender.send(ctx, req,
		func(payload []byte) {
			slice, err := s.processList(ctx, token, payload)
			s.finish(ctx, slice, err, done)
		},
		func(err error) {
			s.finish(ctx, BoostsListSlice{}, err, done)
		})

	return nil
}

func (s *Boosts) processList(ctx context.Context, token BoostsOffsetToken, payload []byte) (BoostsListSlice, error) {
	var data boostsList
	if err := decodePayload(payload, "premium.boostsList", &data); err != nil {
		return BoostsListSlice{}, err
	}

	s.sender.mergeEntities(ctx, data.Users, nil)

	list := make([]Boost, 0, len(data.Boosts))
	for _, raw := range data.Boosts {
		var item boostData
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}

		list = append(list, s.boost(item))
	}

	next := BoostsOffsetToken{Gifts: token.Gifts}
	allLoaded := data.NextOffset == nil || *data.NextOffset == "" || *data.NextOffset == token.Next
	if !allLoaded {
		next.Next = *data.NextOffset
	}

	return BoostsListSlice{
		List:            list,
		MultipliedTotal: data.Count,
		AllLoaded:       allLoaded,
		Token:           next,
	}, nil
}

func (s *Boosts) boost(data boostData) Boost {
	value := Boost{
		Gift:       data.Gift,
		Giveaway:   data.Giveaway,
		Unclaimed:  data.Unclaimed,
		ID:         data.ID,
		UserID:     FlattenUser(data.UserID),
		Date:       time.Unix(data.Date, 0),
		Expires:    time.Unix(data.Expires, 0),
		Months:     int((data.Expires - data.Date) / (30 * 86400)),
		Multiplier: data.Multiplier,
	}

	if data.GiveawayMsgID != 0 {
		value.GiveawayMessage = FullMsgID{Peer: s.sender.channel.ID, Msg: data.GiveawayMsgID}
	}

	if data.UsedGiftSlug != "" {
		value.GiftCode = giftCodeLink(s.sender.config.linkHost(), data.UsedGiftSlug)
	}

	return value
}

func giftCodeLink(host, slug string) GiftCodeLink {
	return GiftCodeLink{
		Text: host + "/giftcode/" + slug,
		URL:  "https://" + host + "/giftcode/" + slug,
		Slug: slug,
	}
}

func (s *Boosts) begin(ctx context.Context) error {
	ctx, cancel := s.sender.mu.Lock(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	defer cancel()

	if s.sender.closed {
		return errors.WithStack(ErrClosed)
	}

	if s.busy {
		return errors.WithStack(ErrBusy)
	}

	s.busy = true
	return nil
}

func (s *Boosts) finish(ctx context.Context, slice BoostsListSlice, err error, done func(BoostsListSlice, error)) {
	_, cancel := s.sender.mu.Lock(context.Background())
	s.busy = false
	switch {
	case s.sender.closed:
		if err == nil {
			slice, err = BoostsListSlice{}, errors.WithStack(ErrClosed)
		}
	case err == nil:
		total := &s.lastTotal
		if slice.Token.Gifts {
			total = &s.lastGiftTotal
		}

		if slice.MultipliedTotal < *total {
			slice.MultipliedTotal = *total
		}

		*total = slice.MultipliedTotal
	}
	cancel()

	logf.Get(s).Resultf(ctx, logf.Debug, logf.Warn, "boosts page for [%s]: %v", s.sender.channel, err)
	done(slice, err)
}

func (d boostsStatus) overview() BoostsOverview {
	var premium, participants float64
	if d.PremiumAudience != nil {
		premium = d.PremiumAudience.Part
		if premium < 0 {
			premium = 0
		}

		participants = d.PremiumAudience.Total
		if participants < premium {
			participants = premium
		}
	}

	var percentage float64
	if participants > 0 {
		percentage = 100 * premium / participants
	}

	level := d.Level
	if level < 0 {
		level = 0
	}

	boostCount := d.Boosts
	if boostCount < d.CurrentLevelBoosts {
		boostCount = d.CurrentLevelBoosts
	}

	var nextLevel int
	if d.NextLevelBoosts != nil {
		nextLevel = *d.NextLevelBoosts
	}

	return BoostsOverview{
		Mine:                    len(d.MyBoostSlots),
		Level:                   level,
		BoostCount:              boostCount,
		CurrentLevelBoostCount:  d.CurrentLevelBoosts,
		NextLevelBoostCount:     nextLevel,
		PremiumMemberCount:      int(premium),
		PremiumMemberPercentage: percentage,
	}
}

func (d boostsStatus) giveaways() []BoostPrepaidGiveaway {
	if len(d.PrepaidGiveaways) == 0 {
		return nil
	}

	list := make([]BoostPrepaidGiveaway, len(d.PrepaidGiveaways))
	for i, giveaway := range d.PrepaidGiveaways {
		list[i] = BoostPrepaidGiveaway{
			ID:       giveaway.ID,
			Months:   giveaway.Months,
			Quantity: giveaway.Quantity,
			Date:     time.Unix(giveaway.Date, 0),
		}
	}

	return list
}

// Status returns a copy of the last assembled snapshot, nil before the
// first successful Request.
func (s *Boosts) Status() *BoostStatus {
	_, cancel := s.sender.mu.RLock(context.Background())
	defer cancel()

	if s.status == nil {
		return nil
	}

	status := *s.status
	return &status
}

// Close unregisters tracked calls and stops the check timer. Pages and
// responses arriving afterwards complete with ErrClosed and mutate
// nothing.
func (s *Boosts) Close() error {
	s.sender.close()
	return nil
}
