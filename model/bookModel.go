// model/book.go
package model

import "time"

// Book is the local copy of a catalog entry. Rows are created on first use
// (import, shelf add, or a club winner) and never refreshed.
type Book struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	ISBN        string    `json:"isbn" gorm:"size:32;not null;uniqueIndex"`
	Title       string    `json:"title" gorm:"size:500;not null"`
	Author      string    `json:"author" gorm:"size:500"`
	Description string    `json:"description"`
	Cover       string    `json:"cover" gorm:"size:1000"`
	CreatedAt   time.Time `json:"created_at"`
}

type ShelfStatus string

const (
	ShelfReading   ShelfStatus = "reading"
	ShelfFavorite  ShelfStatus = "favorite"
	ShelfCompleted ShelfStatus = "completed"
)

func (s ShelfStatus) Valid() bool {
	switch s {
	case ShelfReading, ShelfFavorite, ShelfCompleted:
		return true
	}
	return false
}

// UserBook places a book on one of a user's shelves.
type UserBook struct {
	ID       int64       `json:"id" gorm:"primaryKey"`
	UserID   int64       `json:"user_id" gorm:"not null;uniqueIndex:idx_user_book_status"`
	BookID   int64       `json:"book_id" gorm:"not null;uniqueIndex:idx_user_book_status"`
	Status   ShelfStatus `json:"status" gorm:"size:20;not null;uniqueIndex:idx_user_book_status"`
	Progress int         `json:"progress" gorm:"not null;default:0"`
	AddedAt  time.Time   `json:"added_at"`

	Book *Book `json:"book,omitempty" gorm:"foreignKey:BookID"`
}

// BookSnapshot is the book data a club proposal carries.
type BookSnapshot struct {
	ISBN     string
	Title    string
	Author   string
	CoverURL string
}
