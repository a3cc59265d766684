// model/chat.go
package model

import "time"

// ChatMessage with a nil ClubID belongs to the general room.
type ChatMessage struct {
	ID       int64     `json:"id" gorm:"primaryKey"`
	ClubID   *int64    `json:"club_id,omitempty" gorm:"index"`
	UserID   int64     `json:"user_id" gorm:"not null"`
	Username string    `json:"username" gorm:"size:64;not null"`
	Message  string    `json:"message" gorm:"not null"`
	SentAt   time.Time `json:"sent_at" gorm:"index"`
}

// All lists every persisted model, in migration order.
func All() []any {
	return []any{
		&User{},
		&Book{},
		&UserBook{},
		&Club{},
		&Membership{},
		&Invitation{},
		&VotingSession{},
		&Proposal{},
		&Vote{},
		&ChatMessage{},
	}
}
