package tgstats

import (
	"math"
	"time"

	telegram "github.com/jfk9w-go/telegram-bot-api"
)

// StatisticalValue is a metric paired with its value from the previous
// period and the derived growth rate.
type StatisticalValue struct {
	Value                float64
	Previous             float64
	GrowthRatePercentage float64
}

// GrowthRate returns the absolute growth of current over previous in
// percent. No previous value means no growth to report.
func GrowthRate(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}

	return math.Abs((current - previous) / previous * 100)
}

// RatioPercentage converts part/total to a percentage clamped to
// [0, 100]. Zero total yields zero.
func RatioPercentage(part, total float64) float64 {
	if total == 0 {
		return 0
	}

	return math.Min(math.Max(part/total*100, 0), 100)
}

// MessageInteractionInfo is a per-post interaction counter set.
// Exactly one of MessageID and StoryID is set.
type MessageInteractionInfo struct {
	MessageID MsgID
	StoryID   StoryID
	Views     int
	Forwards  int
	Reactions int
}

type MessageSenderInfo struct {
	UserID            telegram.ID
	SentMessages      int
	AverageCharacters int
}

type AdministratorActionsInfo struct {
	UserID     telegram.ID
	Deleted    int
	Banned     int
	Restricted int
}

type InviterInfo struct {
	UserID       telegram.ID
	AddedMembers int
}

// ChannelStatistics is the snapshot for a broadcast channel.
type ChannelStatistics struct {
	StartDate int64
	EndDate   int64

	MemberCount       StatisticalValue
	MeanViewCount     StatisticalValue
	MeanShareCount    StatisticalValue
	MeanReactionCount StatisticalValue

	MeanStoryViewCount     StatisticalValue
	MeanStoryShareCount    StatisticalValue
	MeanStoryReactionCount StatisticalValue

	EnabledNotificationsPercentage float64

	MemberCountGraph             StatisticalGraph
	JoinGraph                    StatisticalGraph
	MuteGraph                    StatisticalGraph
	ViewCountByHourGraph         StatisticalGraph
	ViewCountBySourceGraph       StatisticalGraph
	JoinBySourceGraph            StatisticalGraph
	LanguageGraph                StatisticalGraph
	MessageInteractionGraph      StatisticalGraph
	InstantViewInteractionGraph  StatisticalGraph
	ReactionsByEmotionGraph      StatisticalGraph
	StoryInteractionsGraph       StatisticalGraph
	StoryReactionsByEmotionGraph StatisticalGraph

	RecentInteractions []MessageInteractionInfo
}

// SupergroupStatistics is the snapshot for a megagroup.
type SupergroupStatistics struct {
	StartDate int64
	EndDate   int64

	MemberCount  StatisticalValue
	MessageCount StatisticalValue
	ViewerCount  StatisticalValue
	SenderCount  StatisticalValue

	MemberCountGraph    StatisticalGraph
	JoinGraph           StatisticalGraph
	JoinBySourceGraph   StatisticalGraph
	LanguageGraph       StatisticalGraph
	MessageContentGraph StatisticalGraph
	ActionGraph         StatisticalGraph
	DayGraph            StatisticalGraph
	WeekGraph           StatisticalGraph

	TopSenders        []MessageSenderInfo
	TopAdministrators []AdministratorActionsInfo
	TopInviters       []InviterInfo
}

// Stats is the result of Statistics.Request: exactly one of the two
// members is set, depending on the channel kind.
type Stats struct {
	Channel    *ChannelStatistics
	Supergroup *SupergroupStatistics
}

// PostStatistics is the snapshot for a single message or story.
type PostStatistics struct {
	InteractionGraph        StatisticalGraph
	ReactionsByEmotionGraph StatisticalGraph

	PublicForwards  int
	PrivateForwards int
	Views           int
	Reactions       int
}

// ForwardsOffsetToken is the pagination cursor for public forward
// listing. The zero value requests the first page.
type ForwardsOffsetToken struct {
	Rate        int
	FullID      FullMsgID
	StoryOffset string
}

// PublicForwardsSlice is one page of public forwards. Total never
// decreases across pages of the same fetcher.
type PublicForwardsSlice struct {
	List      []RecentPostID
	Total     int
	AllLoaded bool
	Token     ForwardsOffsetToken
}

// BoostsOffsetToken is the pagination cursor for boost listing.
// Gifts selects the gifted-boosts list kind.
type BoostsOffsetToken struct {
	Next  string
	Gifts bool
}

type GiftCodeLink struct {
	Text string
	URL  string
	Slug string
}

type Boost struct {
	Gift      bool
	Giveaway  bool
	Unclaimed bool

	ID              string
	UserID          telegram.ID
	GiveawayMessage FullMsgID
	Date            time.Time
	Expires         time.Time
	Months          int
	GiftCode        GiftCodeLink
	Multiplier      int
}

// BoostsListSlice is one page of boosts. MultipliedTotal counts boosts
// with multipliers applied, as reported by the backend.
type BoostsListSlice struct {
	List            []Boost
	MultipliedTotal int
	AllLoaded       bool
	Token           BoostsOffsetToken
}

type BoostsOverview struct {
	Mine                    int
	Level                   int
	BoostCount              int
	CurrentLevelBoostCount  int
	NextLevelBoostCount     int
	PremiumMemberCount      int
	PremiumMemberPercentage float64
}

type BoostPrepaidGiveaway struct {
	ID       int64
	Months   int
	Quantity int
	Date     time.Time
}

// BoostStatus is the snapshot produced by Boosts.Request.
type BoostStatus struct {
	Overview         BoostsOverview
	Link             string
	PrepaidGiveaways []BoostPrepaidGiveaway
	FirstSliceBoosts BoostsListSlice
	FirstSliceGifts  BoostsListSlice
}
