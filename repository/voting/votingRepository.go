package votingrepo

import (
	"context"
	"errors"
	"time"

	"bookclub/model"
	"bookclub/util/database"

	"gorm.io/gorm"
)

// ProposalRow is a proposal with its live vote count and proposer name.
type ProposalRow struct {
	model.Proposal
	ProposedBy string `json:"proposed_by"`
	VoteCount  int64  `json:"vote_count"`
}

// ReadingRow is the winner of one closed session.
type ReadingRow struct {
	SessionID  int64     `json:"session_id"`
	ProposalID int64     `json:"proposal_id"`
	ISBN       string    `json:"isbn"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	CoverURL   string    `json:"cover_url"`
	SelectedAt time.Time `json:"selected_at"`
}

// Methods that take tx run on it when non-nil.
type Repo interface {
	ActiveSession(ctx context.Context, tx *gorm.DB, clubID int64) (*model.VotingSession, error)
	CreateSession(ctx context.Context, tx *gorm.DB, s *model.VotingSession) error
	SaveSession(ctx context.Context, tx *gorm.DB, s *model.VotingSession) error

	Proposals(ctx context.Context, tx *gorm.DB, sessionID int64) ([]ProposalRow, error)
	CountProposals(ctx context.Context, tx *gorm.DB, sessionID int64) (int64, error)
	ProposalByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Proposal, error)
	ProposalByUser(ctx context.Context, tx *gorm.DB, sessionID, userID int64) (*model.Proposal, error)
	ProposalByISBN(ctx context.Context, tx *gorm.DB, sessionID int64, isbn string) (*model.Proposal, error)
	CreateProposal(ctx context.Context, tx *gorm.DB, p *model.Proposal) error
	SaveProposal(ctx context.Context, tx *gorm.DB, p *model.Proposal) error

	VoteByUser(ctx context.Context, tx *gorm.DB, sessionID, userID int64) (*model.Vote, error)
	CreateVote(ctx context.Context, tx *gorm.DB, v *model.Vote) error
	SaveVote(ctx context.Context, tx *gorm.DB, v *model.Vote) error
	DeleteVote(ctx context.Context, tx *gorm.DB, id int64) error
	CountVotes(ctx context.Context, tx *gorm.DB, proposalID int64) (int64, error)

	ReadingList(ctx context.Context, clubID int64) ([]ReadingRow, error)
	LatestWinner(ctx context.Context, clubID int64) (*ReadingRow, error)
}

type repo struct{ db *gorm.DB }

func New(db *gorm.DB) Repo { return &repo{db: db} }

func (r *repo) conn(ctx context.Context, tx *gorm.DB) *gorm.DB { return database.Conn(ctx, r.db, tx) }

func first[T any](q *gorm.DB) (*T, error) {
	var v T
	err := q.First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repo) ActiveSession(ctx context.Context, tx *gorm.DB, clubID int64) (*model.VotingSession, error) {
	return first[model.VotingSession](r.conn(ctx, tx).
		Where("club_id = ? AND status <> ?", clubID, model.SessionClosed).
		Order("id DESC"))
}

func (r *repo) CreateSession(ctx context.Context, tx *gorm.DB, s *model.VotingSession) error {
	return r.conn(ctx, tx).Create(s).Error
}

func (r *repo) SaveSession(ctx context.Context, tx *gorm.DB, s *model.VotingSession) error {
	return r.conn(ctx, tx).Save(s).Error
}

func (r *repo) Proposals(ctx context.Context, tx *gorm.DB, sessionID int64) ([]ProposalRow, error) {
	var out []ProposalRow
	err := r.conn(ctx, tx).
		Table("club_book_proposals AS p").
		Select(`p.*, COALESCE(u.username, '') AS proposed_by,
			(SELECT COUNT(*) FROM club_book_votes v WHERE v.proposal_id = p.id) AS vote_count`).
		Joins("LEFT JOIN users u ON u.id = p.proposed_by_user_id").
		Where("p.session_id = ?", sessionID).
		Order("p.id").
		Scan(&out).Error
	return out, err
}

func (r *repo) CountProposals(ctx context.Context, tx *gorm.DB, sessionID int64) (int64, error) {
	var n int64
	err := r.conn(ctx, tx).Model(&model.Proposal{}).Where("session_id = ?", sessionID).Count(&n).Error
	return n, err
}

func (r *repo) ProposalByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Proposal, error) {
	return first[model.Proposal](r.conn(ctx, tx).Where("id = ?", id))
}

func (r *repo) ProposalByUser(ctx context.Context, tx *gorm.DB, sessionID, userID int64) (*model.Proposal, error) {
	return first[model.Proposal](r.conn(ctx, tx).
		Where("session_id = ? AND proposed_by_user_id = ?", sessionID, userID))
}

func (r *repo) ProposalByISBN(ctx context.Context, tx *gorm.DB, sessionID int64, isbn string) (*model.Proposal, error) {
	return first[model.Proposal](r.conn(ctx, tx).Where("session_id = ? AND isbn = ?", sessionID, isbn))
}

func (r *repo) CreateProposal(ctx context.Context, tx *gorm.DB, p *model.Proposal) error {
	return r.conn(ctx, tx).Create(p).Error
}

func (r *repo) SaveProposal(ctx context.Context, tx *gorm.DB, p *model.Proposal) error {
	return r.conn(ctx, tx).Save(p).Error
}

func (r *repo) VoteByUser(ctx context.Context, tx *gorm.DB, sessionID, userID int64) (*model.Vote, error) {
	return first[model.Vote](r.conn(ctx, tx).Where("session_id = ? AND user_id = ?", sessionID, userID))
}

func (r *repo) CreateVote(ctx context.Context, tx *gorm.DB, v *model.Vote) error {
	return r.conn(ctx, tx).Create(v).Error
}

func (r *repo) SaveVote(ctx context.Context, tx *gorm.DB, v *model.Vote) error {
	return r.conn(ctx, tx).Save(v).Error
}

func (r *repo) DeleteVote(ctx context.Context, tx *gorm.DB, id int64) error {
	return r.conn(ctx, tx).Delete(&model.Vote{}, id).Error
}

func (r *repo) CountVotes(ctx context.Context, tx *gorm.DB, proposalID int64) (int64, error) {
	var n int64
	err := r.conn(ctx, tx).Model(&model.Vote{}).Where("proposal_id = ?", proposalID).Count(&n).Error
	return n, err
}

func (r *repo) readingQuery(ctx context.Context, clubID int64) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("voting_sessions AS s").
		Select(`s.id AS session_id, p.id AS proposal_id, p.isbn, p.title, p.author,
			p.cover_url, s.voting_closed_at AS selected_at`).
		Joins("JOIN club_book_proposals p ON p.id = s.winning_proposal_id").
		Where("s.club_id = ? AND s.status = ?", clubID, model.SessionClosed).
		Order("s.voting_closed_at DESC, s.id DESC")
}

func (r *repo) ReadingList(ctx context.Context, clubID int64) ([]ReadingRow, error) {
	out := []ReadingRow{}
	err := r.readingQuery(ctx, clubID).Scan(&out).Error
	return out, err
}

func (r *repo) LatestWinner(ctx context.Context, clubID int64) (*ReadingRow, error) {
	var out []ReadingRow
	if err := r.readingQuery(ctx, clubID).Limit(1).Scan(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}
