package bookrepo

import (
	"context"
	"errors"
	"time"

	"bookclub/model"
	"bookclub/util/database"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotOnShelf = errors.New("book is not on that shelf")

type Repo interface {
	ByID(ctx context.Context, id int64) (*model.Book, error)
	ByISBN(ctx context.Context, isbn string) (*model.Book, error)
	// Ensure inserts b unless a book with the same ISBN exists and returns the
	// stored row either way.
	Ensure(ctx context.Context, b *model.Book) (*model.Book, error)

	Shelf(ctx context.Context, userID int64, status model.ShelfStatus) ([]model.UserBook, error)
	AddToShelf(ctx context.Context, ub *model.UserBook) error
	UpdateProgress(ctx context.Context, userID, entryID int64, progress int) (bool, error)
	Complete(ctx context.Context, userID, bookID int64, at time.Time) error
	Remove(ctx context.Context, userID int64, status model.ShelfStatus, entryID int64) (bool, error)
	StatusesFor(ctx context.Context, userID int64, isbn string) ([]model.ShelfStatus, error)

	// OnShelf looks up a user's shelf entry for isbn, with its book loaded.
	OnShelf(ctx context.Context, tx *gorm.DB, userID int64, isbn string, status model.ShelfStatus) (*model.UserBook, error)
	AddReadingFor(ctx context.Context, bookID int64, userIDs []int64, at time.Time) (added, already int, err error)
}

type repo struct{ db *gorm.DB }

func New(db *gorm.DB) Repo { return &repo{db} }

func (r *repo) ByID(ctx context.Context, id int64) (*model.Book, error) {
	return firstBook(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) ByISBN(ctx context.Context, isbn string) (*model.Book, error) {
	return firstBook(r.db.WithContext(ctx).Where("isbn = ?", isbn))
}

func firstBook(q *gorm.DB) (*model.Book, error) {
	var b model.Book
	err := q.First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repo) Ensure(ctx context.Context, b *model.Book) (*model.Book, error) {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "isbn"}}, DoNothing: true}).
		Create(b).Error
	if err != nil {
		return nil, err
	}
	return r.ByISBN(ctx, b.ISBN)
}

func (r *repo) Shelf(ctx context.Context, userID int64, status model.ShelfStatus) ([]model.UserBook, error) {
	var out []model.UserBook
	err := r.db.WithContext(ctx).
		Preload("Book").
		Where("user_id = ? AND status = ?", userID, status).
		Order("added_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

func (r *repo) AddToShelf(ctx context.Context, ub *model.UserBook) error {
	return r.db.WithContext(ctx).Create(ub).Error
}

func (r *repo) UpdateProgress(ctx context.Context, userID, entryID int64, progress int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.UserBook{}).
		Where("id = ? AND user_id = ? AND status = ?", entryID, userID, model.ShelfReading).
		Update("progress", progress)
	return res.RowsAffected > 0, res.Error
}

// Complete moves a reading entry to the completed shelf. An existing
// completed entry for the same book is kept.
func (r *repo) Complete(ctx context.Context, userID, bookID int64, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND book_id = ? AND status = ?", userID, bookID, model.ShelfReading).
			Delete(&model.UserBook{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotOnShelf
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.UserBook{
			UserID:   userID,
			BookID:   bookID,
			Status:   model.ShelfCompleted,
			Progress: 100,
			AddedAt:  at,
		}).Error
	})
}

func (r *repo) Remove(ctx context.Context, userID int64, status model.ShelfStatus, entryID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND status = ?", entryID, userID, status).
		Delete(&model.UserBook{})
	return res.RowsAffected > 0, res.Error
}

func (r *repo) StatusesFor(ctx context.Context, userID int64, isbn string) ([]model.ShelfStatus, error) {
	var out []model.ShelfStatus
	err := r.db.WithContext(ctx).
		Table("user_books AS ub").
		Joins("JOIN books b ON b.id = ub.book_id").
		Where("ub.user_id = ? AND b.isbn = ?", userID, isbn).
		Order("ub.status").
		Pluck("ub.status", &out).Error
	return out, err
}

func (r *repo) OnShelf(ctx context.Context, tx *gorm.DB, userID int64, isbn string, status model.ShelfStatus) (*model.UserBook, error) {
	var ub model.UserBook
	err := database.Conn(ctx, r.db, tx).
		Preload("Book").
		Joins("JOIN books ON books.id = user_books.book_id").
		Where("user_books.user_id = ? AND user_books.status = ? AND books.isbn = ?", userID, status, isbn).
		First(&ub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ub, nil
}

func (r *repo) AddReadingFor(ctx context.Context, bookID int64, userIDs []int64, at time.Time) (added, already int, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var have []int64
		if err := tx.Model(&model.UserBook{}).
			Where("book_id = ? AND status = ? AND user_id IN ?", bookID, model.ShelfReading, userIDs).
			Pluck("user_id", &have).Error; err != nil {
			return err
		}
		skip := make(map[int64]bool, len(have))
		for _, id := range have {
			skip[id] = true
		}

		var rows []model.UserBook
		for _, uid := range userIDs {
			if skip[uid] {
				already++
				continue
			}
			skip[uid] = true
			rows = append(rows, model.UserBook{UserID: uid, BookID: bookID, Status: model.ShelfReading, AddedAt: at})
		}
		if len(rows) == 0 {
			return nil
		}
		added = len(rows)
		return tx.Create(&rows).Error
	})
	if err != nil {
		return 0, 0, err
	}
	return added, already, nil
}
