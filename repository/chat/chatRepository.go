package chatrepo

import (
	"context"

	"bookclub/model"

	"gorm.io/gorm"
)

type Repo interface {
	Save(ctx context.Context, m *model.ChatMessage) error
	// Recent returns the latest limit messages of a room, oldest first.
	// A nil clubID selects the general room.
	Recent(ctx context.Context, clubID *int64, limit int) ([]model.ChatMessage, error)
}

type repo struct{ db *gorm.DB }

func New(db *gorm.DB) Repo { return &repo{db: db} }

func (r *repo) Save(ctx context.Context, m *model.ChatMessage) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *repo) Recent(ctx context.Context, clubID *int64, limit int) ([]model.ChatMessage, error) {
	q := r.db.WithContext(ctx).Model(&model.ChatMessage{})
	if clubID == nil {
		q = q.Where("club_id IS NULL")
	} else {
		q = q.Where("club_id = ?", *clubID)
	}

	var out []model.ChatMessage
	if err := q.Order("sent_at DESC, id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
