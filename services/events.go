package services

// Event types emitted by the rest of the platform.
const (
	EventFeedPost               = "FEED_POST"
	EventForumPost              = "FORUM_POST"
	EventForumReply             = "FORUM_REPLY"
	EventForumThread            = "FORUM_THREAD"
	EventForumThreadClose       = "FORUM_THREAD_CLOSE"
	EventForumThreadOpen        = "FORUM_THREAD_OPEN"
	EventBlogPost               = "BLOG_POST"
	EventBlogPublish            = "BLOG_PUBLISH"
	EventBlogUpdateMajor        = "BLOG_UPDATE_MAJOR"
	EventCommunityPost          = "COMMUNITY_POST"
	EventCommunityCreate        = "COMMUNITY_CREATE"
	EventCommunityComment       = "COMMUNITY_COMMENT"
	EventCommunityReceiveUpvote = "COMMUNITY_RECEIVE_UPVOTE"
	EventDailyLogin             = "DAILY_LOGIN"

	// Synthetic feed entries, never stored in the ledger.
	EventBadgeAwarded = "BADGE_AWARDED"
	EventPerkClaimed  = "PERK_CLAIMED"
)

// DefaultEventPoints is applied by the HTTP ingest when a request omits points.
var DefaultEventPoints = map[string]int64{
	EventFeedPost:               20,
	EventForumPost:              15,
	EventForumReply:             10,
	EventForumThread:            25,
	EventForumThreadClose:       5,
	EventForumThreadOpen:        5,
	EventBlogPost:               20,
	EventBlogPublish:            10,
	EventBlogUpdateMajor:        8,
	EventCommunityPost:          15,
	EventCommunityCreate:        50,
	EventCommunityComment:       10,
	EventCommunityReceiveUpvote: 2,
}

// EventPoints returns the default amount for an event type.
func EventPoints(eventType string) (int64, bool) {
	pts, ok := DefaultEventPoints[eventType]
	return pts, ok
}

// PointsPerLevel: every 1000 points is one level, level 1 starts at 0
const PointsPerLevel = 1000

// ComputeLevel maps a point total to its level.
func ComputeLevel(points int64) int {
	if points < 0 {
		return 1
	}
	return int(points/PointsPerLevel) + 1
}

// DailyLoginPoints: 10 base plus a streak bonus capped at 20
func DailyLoginPoints(streak int) int64 {
	bonus := min(streak*2, 20)
	return int64(10 + bonus)
}
