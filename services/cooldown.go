package services

import (
	"fmt"
	"time"

	"gamification-engine/models"

	"gorm.io/gorm"
)

// Cooldown suppresses repeats of an event type for the same subject inside Window.
// The subject is read from the event metadata under MetadataKey.
type Cooldown struct {
	Window      time.Duration
	MetadataKey string
}

var DefaultCooldowns = map[string]Cooldown{
	EventBlogUpdateMajor: {Window: 12 * time.Hour, MetadataKey: "postId"},
}

func (e *Engine) inCooldown(db *gorm.DB, userID, eventType string, metadata map[string]any) (bool, error) {
	cd, ok := e.cooldowns[eventType]
	if !ok {
		return false, nil
	}
	subject, ok := metadata[cd.MetadataKey]
	if !ok {
		return false, nil
	}

	var recent []models.LedgerEvent
	err := db.Where("user_id = ? AND type = ? AND created_at > ?", userID, eventType, e.now().Add(-cd.Window)).
		Find(&recent).Error
	if err != nil {
		return false, fmt.Errorf("cooldown lookup: %w", err)
	}
	want := fmt.Sprint(subject)
	for _, ev := range recent {
		if got, ok := ev.Metadata[cd.MetadataKey]; ok && fmt.Sprint(got) == want {
			return true, nil
		}
	}
	return false, nil
}
