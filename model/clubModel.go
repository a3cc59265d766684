// model/club.go
package model

import "time"

type Club struct {
	ID              int64     `json:"id" gorm:"primaryKey"`
	Title           string    `json:"title" gorm:"size:200;not null"`
	Genre           string    `json:"genre" gorm:"size:100;not null;index"`
	Description     string    `json:"description"`
	CoverImage      *string   `json:"cover_image,omitempty" gorm:"size:1000"`
	CreatedByUserID int64     `json:"created_by_user_id" gorm:"not null"`
	CreatedAt       time.Time `json:"created_at"`

	CreatedBy *User `json:"created_by,omitempty" gorm:"foreignKey:CreatedByUserID"`
}

type MemberRole string

const (
	RoleUser  MemberRole = "User"
	RoleAdmin MemberRole = "Admin"
)

// Membership is unique per (club, user).
type Membership struct {
	ID      int64      `json:"id" gorm:"primaryKey"`
	ClubID  int64      `json:"club_id" gorm:"not null;uniqueIndex:idx_membership_club_user"`
	UserID  int64      `json:"user_id" gorm:"not null;uniqueIndex:idx_membership_club_user;index"`
	BookID  *int64     `json:"book_id,omitempty"`
	Role    MemberRole `json:"role" gorm:"size:20;not null;default:User"`
	AddedAt time.Time  `json:"joined_at"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Book *Book `json:"book,omitempty" gorm:"foreignKey:BookID"`
}

func (Membership) TableName() string { return "club_memberships" }

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "Pending"
	InvitationAccepted InvitationStatus = "Accepted"
	InvitationRejected InvitationStatus = "Rejected"
)

type Invitation struct {
	ID              int64            `json:"id" gorm:"primaryKey"`
	ClubID          int64            `json:"club_id" gorm:"not null;index"`
	InvitedUserID   int64            `json:"invited_user_id" gorm:"not null;index"`
	InvitedByUserID int64            `json:"invited_by_user_id" gorm:"not null"`
	InvitedAt       time.Time        `json:"invited_at"`
	Status          InvitationStatus `json:"status" gorm:"size:20;not null;default:Pending"`
	Code            string           `json:"code" gorm:"size:16;not null;uniqueIndex"`

	Club        *Club `json:"club,omitempty" gorm:"foreignKey:ClubID"`
	InvitedUser *User `json:"invited_user,omitempty" gorm:"foreignKey:InvitedUserID"`
	InvitedBy   *User `json:"invited_by,omitempty" gorm:"foreignKey:InvitedByUserID"`
}

func (Invitation) TableName() string { return "club_invitations" }
