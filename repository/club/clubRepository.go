package clubrepo

import (
	"context"
	"errors"

	"bookclub/model"
	"bookclub/util/database"

	"gorm.io/gorm"
)

// ClubRow is a club with its member count.
type ClubRow struct {
	model.Club
	UserCount int64 `json:"user_count"`
}

type Repo interface {
	Create(ctx context.Context, c *model.Club, admin *model.Membership) error
	List(ctx context.Context) ([]ClubRow, error)
	ByID(ctx context.Context, id int64) (*model.Club, error)
	ClubsOf(ctx context.Context, userID int64) ([]ClubRow, error)
	MemberCount(ctx context.Context, clubID int64) (int64, error)

	Membership(ctx context.Context, clubID, userID int64) (*model.Membership, error)
	IsMember(ctx context.Context, tx *gorm.DB, clubID, userID int64) (bool, error)
	MemberIDs(ctx context.Context, tx *gorm.DB, clubID int64) ([]int64, error)
	Members(ctx context.Context, clubID int64) ([]model.Membership, error)
	AddMember(ctx context.Context, m *model.Membership) error
	RemoveMember(ctx context.Context, clubID, userID int64) (bool, error)
	AssignBook(ctx context.Context, clubID, userID int64, bookID *int64) (bool, error)

	PendingInvitation(ctx context.Context, clubID, userID int64) (*model.Invitation, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	CreateInvitation(ctx context.Context, inv *model.Invitation) error
	InvitationByID(ctx context.Context, id int64) (*model.Invitation, error)
	PendingByCode(ctx context.Context, code string) (*model.Invitation, error)
	PendingFor(ctx context.Context, userID int64) ([]model.Invitation, error)
	// Accept marks inv accepted and adds the membership unless it exists.
	Accept(ctx context.Context, inv *model.Invitation, m *model.Membership) error
	SetInvitationStatus(ctx context.Context, id int64, st model.InvitationStatus) error
}

type repo struct{ db *gorm.DB }

func New(db *gorm.DB) Repo { return &repo{db: db} }

func (r *repo) Create(ctx context.Context, c *model.Club, admin *model.Membership) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		admin.ClubID = c.ID
		return tx.Create(admin).Error
	})
}

func (r *repo) withCounts(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("clubs").
		Select("clubs.*, (SELECT COUNT(*) FROM club_memberships m WHERE m.club_id = clubs.id) AS user_count")
}

func (r *repo) List(ctx context.Context) ([]ClubRow, error) {
	var out []ClubRow
	err := r.withCounts(ctx).Order("clubs.created_at DESC, clubs.id DESC").Scan(&out).Error
	return out, err
}

func (r *repo) ClubsOf(ctx context.Context, userID int64) ([]ClubRow, error) {
	var out []ClubRow
	err := r.withCounts(ctx).
		Where("clubs.id IN (?)", r.db.Model(&model.Membership{}).Select("club_id").Where("user_id = ?", userID)).
		Order("clubs.id").
		Scan(&out).Error
	return out, err
}

func (r *repo) ByID(ctx context.Context, id int64) (*model.Club, error) {
	var c model.Club
	err := r.db.WithContext(ctx).Preload("CreatedBy").First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repo) MemberCount(ctx context.Context, clubID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Membership{}).Where("club_id = ?", clubID).Count(&n).Error
	return n, err
}

func (r *repo) Membership(ctx context.Context, clubID, userID int64) (*model.Membership, error) {
	var m model.Membership
	err := r.db.WithContext(ctx).
		Preload("Book").
		Where("club_id = ? AND user_id = ?", clubID, userID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repo) IsMember(ctx context.Context, tx *gorm.DB, clubID, userID int64) (bool, error) {
	var n int64
	err := database.Conn(ctx, r.db, tx).Model(&model.Membership{}).
		Where("club_id = ? AND user_id = ?", clubID, userID).
		Count(&n).Error
	return n > 0, err
}

func (r *repo) MemberIDs(ctx context.Context, tx *gorm.DB, clubID int64) ([]int64, error) {
	var ids []int64
	err := database.Conn(ctx, r.db, tx).Model(&model.Membership{}).
		Where("club_id = ?", clubID).
		Order("id").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *repo) Members(ctx context.Context, clubID int64) ([]model.Membership, error) {
	var out []model.Membership
	err := r.db.WithContext(ctx).
		Preload("User").
		Preload("Book").
		Where("club_id = ?", clubID).
		Order("added_at, id").
		Find(&out).Error
	return out, err
}

func (r *repo) AddMember(ctx context.Context, m *model.Membership) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *repo) RemoveMember(ctx context.Context, clubID, userID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("club_id = ? AND user_id = ?", clubID, userID).
		Delete(&model.Membership{})
	return res.RowsAffected > 0, res.Error
}

func (r *repo) AssignBook(ctx context.Context, clubID, userID int64, bookID *int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Membership{}).
		Where("club_id = ? AND user_id = ?", clubID, userID).
		Update("book_id", bookID)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) PendingInvitation(ctx context.Context, clubID, userID int64) (*model.Invitation, error) {
	return r.firstInvitation(r.db.WithContext(ctx).
		Where("club_id = ? AND invited_user_id = ? AND status = ?", clubID, userID, model.InvitationPending))
}

func (r *repo) CodeExists(ctx context.Context, code string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Invitation{}).Where("code = ?", code).Count(&n).Error
	return n > 0, err
}

func (r *repo) CreateInvitation(ctx context.Context, inv *model.Invitation) error {
	return r.db.WithContext(ctx).Create(inv).Error
}

func (r *repo) InvitationByID(ctx context.Context, id int64) (*model.Invitation, error) {
	return r.firstInvitation(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) PendingByCode(ctx context.Context, code string) (*model.Invitation, error) {
	return r.firstInvitation(r.db.WithContext(ctx).
		Where("code = ? AND status = ?", code, model.InvitationPending))
}

func (r *repo) firstInvitation(q *gorm.DB) (*model.Invitation, error) {
	var inv model.Invitation
	err := q.Preload("Club").Preload("InvitedUser").Preload("InvitedBy").First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repo) PendingFor(ctx context.Context, userID int64) ([]model.Invitation, error) {
	var out []model.Invitation
	err := r.db.WithContext(ctx).
		Preload("Club").
		Preload("InvitedBy").
		Where("invited_user_id = ? AND status = ?", userID, model.InvitationPending).
		Order("invited_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

func (r *repo) Accept(ctx context.Context, inv *model.Invitation, m *model.Membership) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.Membership{}).
			Where("club_id = ? AND user_id = ?", m.ClubID, m.UserID).
			Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}
		return tx.Model(&model.Invitation{}).Where("id = ?", inv.ID).
			Update("status", model.InvitationAccepted).Error
	})
}

func (r *repo) SetInvitationStatus(ctx context.Context, id int64, st model.InvitationStatus) error {
	return r.db.WithContext(ctx).Model(&model.Invitation{}).Where("id = ?", id).Update("status", st).Error
}
