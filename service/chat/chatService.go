package chatsvc

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"bookclub/model"
	chatrepo "bookclub/repository/chat"

	"gorm.io/gorm"
)

type ErrCode string

const (
	ErrBadInput   ErrCode = "BAD_INPUT"
	ErrNotAMember ErrCode = "NOT_A_MEMBER"
	ErrTooLong    ErrCode = "MESSAGE_TOO_LONG"
)

type codedError struct{ code ErrCode }

func (e codedError) Error() string { return string(e.code) }
func (e codedError) Code() ErrCode { return e.code }
func makeErr(c ErrCode) error      { return codedError{code: c} }

func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

const (
	DefaultHistory = 50
	MaxHistory     = 200
	MaxMessageLen  = 2000
)

// Members answers whether a user may see a club room.
type Members interface {
	IsMember(ctx context.Context, tx *gorm.DB, clubID, userID int64) (bool, error)
}

type Service interface {
	// History returns the latest messages of a room, oldest first. A nil
	// clubID is the general room, open to everyone.
	History(ctx context.Context, userID int64, clubID *int64, limit int) ([]model.ChatMessage, error)
	CanJoin(ctx context.Context, userID int64, clubID *int64) error
	Post(ctx context.Context, userID int64, username string, clubID *int64, text string) (*model.ChatMessage, error)
}

type service struct {
	r       chatrepo.Repo
	members Members
	now     func() time.Time
}

func New(r chatrepo.Repo, members Members) Service {
	return &service{r: r, members: members, now: func() time.Time { return time.Now().UTC() }}
}

func (s *service) CanJoin(ctx context.Context, userID int64, clubID *int64) error {
	if clubID == nil {
		return nil
	}
	ok, err := s.members.IsMember(ctx, nil, *clubID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return makeErr(ErrNotAMember)
	}
	return nil
}

func (s *service) History(ctx context.Context, userID int64, clubID *int64, limit int) ([]model.ChatMessage, error) {
	if err := s.CanJoin(ctx, userID, clubID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistory
	}
	if limit > MaxHistory {
		limit = MaxHistory
	}
	out, err := s.r.Recent(ctx, clubID, limit)
	if out == nil {
		out = []model.ChatMessage{}
	}
	return out, err
}

// Post stores a message. Membership is checked when the socket joins the
// room, not per message.
func (s *service) Post(ctx context.Context, userID int64, username string, clubID *int64, text string) (*model.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, makeErr(ErrBadInput)
	}
	if utf8.RuneCountInString(text) > MaxMessageLen {
		return nil, makeErr(ErrTooLong)
	}
	m := &model.ChatMessage{
		ClubID:   clubID,
		UserID:   userID,
		Username: username,
		Message:  text,
		SentAt:   s.now(),
	}
	if err := s.r.Save(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}
