// model/voting.go
package model

import "time"

type SessionStatus string

const (
	SessionProposing SessionStatus = "Proposing"
	SessionVoting    SessionStatus = "Voting"
	SessionClosed    SessionStatus = "Closed"
)

// VotingSession moves forward only: Proposing -> Voting -> Closed.
// A club has at most one session whose status is not Closed.
type VotingSession struct {
	ID                int64         `json:"id" gorm:"primaryKey"`
	ClubID            int64         `json:"club_id" gorm:"not null;index;uniqueIndex:idx_session_open_club,where:status <> 'Closed'"`
	Status            SessionStatus `json:"status" gorm:"size:20;not null;index"`
	Title             string        `json:"title" gorm:"size:500"`
	CreatedAt         time.Time     `json:"created_at"`
	ProposingClosedAt *time.Time    `json:"proposing_closed_at,omitempty"`
	VotingClosedAt    *time.Time    `json:"voting_closed_at,omitempty"`
	WinningProposalID *int64        `json:"winning_proposal_id,omitempty"`
}

type ProposalStatus string

const (
	ProposalActive ProposalStatus = "Active"
	ProposalWinner ProposalStatus = "Winner"
)

// Proposal snapshots the book at proposal time. One per (session, proposer)
// and one per (session, isbn).
type Proposal struct {
	ID               int64          `json:"id" gorm:"primaryKey"`
	ClubID           int64          `json:"club_id" gorm:"not null;index"`
	SessionID        int64          `json:"session_id" gorm:"not null;uniqueIndex:idx_proposal_session_user;uniqueIndex:idx_proposal_session_isbn"`
	ProposedByUserID int64          `json:"proposed_by_user_id" gorm:"not null;uniqueIndex:idx_proposal_session_user"`
	ISBN             string         `json:"isbn" gorm:"size:32;not null;uniqueIndex:idx_proposal_session_isbn"`
	Title            string         `json:"title" gorm:"size:500;not null"`
	Author           string         `json:"author" gorm:"size:500"`
	CoverURL         string         `json:"cover_url" gorm:"size:1000"`
	Status           ProposalStatus `json:"status" gorm:"size:20;not null"`
	ProposedAt       time.Time      `json:"proposed_at"`
}

func (Proposal) TableName() string { return "club_book_proposals" }

// Vote is unique per (session, voter).
type Vote struct {
	ID         int64     `json:"id" gorm:"primaryKey"`
	SessionID  int64     `json:"session_id" gorm:"not null;uniqueIndex:idx_vote_session_user"`
	ProposalID int64     `json:"proposal_id" gorm:"not null;index"`
	UserID     int64     `json:"user_id" gorm:"not null;uniqueIndex:idx_vote_session_user"`
	VotedAt    time.Time `json:"voted_at"`
}

func (Vote) TableName() string { return "club_book_votes" }
