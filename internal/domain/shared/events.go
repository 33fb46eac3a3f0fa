// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Handlers subscribe by type; the Redis bus routes on the
// string value, so renaming one is a wire change.
const (
	// Registration events
	EventRegistrationCreated   EventType = "registration.created"
	EventRegistrationCancelled EventType = "registration.cancelled"
	EventRegistrationAttended  EventType = "registration.attended"

	// Progress events
	EventXPGained            EventType = "progress.xp_gained"
	EventLevelUp             EventType = "progress.level_up"
	EventStreakUpdated       EventType = "progress.streak_updated"
	EventStreakBroken        EventType = "progress.streak_broken"
	EventAchievementUnlocked EventType = "progress.achievement_unlocked"

	// User events
	EventUserSignedUp   EventType = "user.signed_up"
	EventUserRoleChange EventType = "user.role_changed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Registration Events
// ═══════════════════════════════════════════════════════════════════════════

// RegistrationEvent is emitted when a registration changes state.
type RegistrationEvent struct {
	BaseEvent
	RegistrationID string `json:"registration_id"`
	UserID         string `json:"user_id"`
	SessionID      string `json:"session_id"`
	Status         string `json:"status"`
}

// Payload implements Event interface.
func (e RegistrationEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"registration_id": e.RegistrationID,
		"user_id":         e.UserID,
		"session_id":      e.SessionID,
		"status":          e.Status,
	}
}

// NewRegistrationEvent creates a registration event of the given type.
func NewRegistrationEvent(eventType EventType, registrationID, userID, sessionID, status string) RegistrationEvent {
	return RegistrationEvent{
		BaseEvent:      NewBaseEvent(eventType, registrationID),
		RegistrationID: registrationID,
		UserID:         userID,
		SessionID:      sessionID,
		Status:         status,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// XPGainedEvent is emitted when a pet gains experience.
type XPGainedEvent struct {
	BaseEvent
	UserID    string `json:"user_id"`
	PetID     string `json:"pet_id"`
	Amount    int    `json:"amount"`
	NewTotal  int    `json:"new_total"`
	Reason    string `json:"reason"`
	SessionID string `json:"session_id,omitempty"`
}

// Payload implements Event interface.
func (e XPGainedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"pet_id":     e.PetID,
		"amount":     e.Amount,
		"new_total":  e.NewTotal,
		"reason":     e.Reason,
		"session_id": e.SessionID,
	}
}

// NewXPGainedEvent creates a new XPGainedEvent.
func NewXPGainedEvent(userID, petID string, amount, newTotal int, reason, sessionID string) XPGainedEvent {
	return XPGainedEvent{
		BaseEvent: NewBaseEvent(EventXPGained, userID),
		UserID:    userID,
		PetID:     petID,
		Amount:    amount,
		NewTotal:  newTotal,
		Reason:    reason,
		SessionID: sessionID,
	}
}

// LevelUpEvent is emitted when recomputing the level moved it up.
type LevelUpEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(userID string, oldLevel, newLevel int) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, userID),
		UserID:    userID,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
	}
}

// StreakUpdatedEvent is emitted after an activity changed the streak.
// Broken is set when the activity restarted the streak after a gap.
type StreakUpdatedEvent struct {
	BaseEvent
	UserID         string `json:"user_id"`
	CurrentStreak  int    `json:"current_streak"`
	LongestStreak  int    `json:"longest_streak"`
	PreviousStreak int    `json:"previous_streak"`
	Broken         bool   `json:"broken"`
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":         e.UserID,
		"current_streak":  e.CurrentStreak,
		"longest_streak":  e.LongestStreak,
		"previous_streak": e.PreviousStreak,
		"broken":          e.Broken,
	}
}

// NewStreakUpdatedEvent creates a streak event; broken streaks get their own type.
func NewStreakUpdatedEvent(userID string, current, longest, previous int, broken bool) StreakUpdatedEvent {
	eventType := EventStreakUpdated
	if broken {
		eventType = EventStreakBroken
	}
	return StreakUpdatedEvent{
		BaseEvent:      NewBaseEvent(eventType, userID),
		UserID:         userID,
		CurrentStreak:  current,
		LongestStreak:  longest,
		PreviousStreak: previous,
		Broken:         broken,
	}
}

// AchievementUnlockedEvent is emitted once per newly inserted unlock.
type AchievementUnlockedEvent struct {
	BaseEvent
	UserID          string `json:"user_id"`
	AchievementType string `json:"achievement_type"`
	Title           string `json:"title"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":          e.UserID,
		"achievement_type": e.AchievementType,
		"title":            e.Title,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, achievementType, title string) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:       NewBaseEvent(EventAchievementUnlocked, userID),
		UserID:          userID,
		AchievementType: achievementType,
		Title:           title,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// User Events
// ═══════════════════════════════════════════════════════════════════════════

// UserEvent is emitted on signup and role changes.
type UserEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Payload implements Event interface.
func (e UserEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"email":   e.Email,
		"role":    e.Role,
	}
}

// NewUserEvent creates a user event of the given type.
func NewUserEvent(eventType EventType, userID, email, role string) UserEvent {
	return UserEvent{
		BaseEvent: NewBaseEvent(eventType, userID),
		UserID:    userID,
		Email:     email,
		Role:      role,
	}
}

// PayloadString reads a string field from an event payload. Events that
// crossed the Redis bus only carry their payload map, so handlers read
// through this instead of type-asserting concrete event structs.
func PayloadString(event Event, key string) string {
	if v, ok := event.Payload()[key].(string); ok {
		return v
	}
	return ""
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
