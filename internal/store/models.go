package store

import "time"

// Exchange is one persisted user/bot exchange within a session.
type Exchange struct {
	ID          string    `json:"id"` // UUID
	SessionID   string    `json:"session_id"`
	UserMessage string    `json:"user_message"`
	BotMessage  string    `json:"bot_message"`
	Timestamp   time.Time `json:"timestamp"`
}
