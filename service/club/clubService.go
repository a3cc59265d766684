package clubsvc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"bookclub/model"
	clubrepo "bookclub/repository/club"
	votingrepo "bookclub/repository/voting"
	"bookclub/util/database"
	"bookclub/util/mailer"
)

type ErrCode string

const (
	ErrNotFound           ErrCode = "NOT_FOUND"
	ErrBadInput           ErrCode = "BAD_INPUT"
	ErrAlreadyMember      ErrCode = "ALREADY_MEMBER"
	ErrNotAMember         ErrCode = "NOT_A_MEMBER"
	ErrForbidden          ErrCode = "FORBIDDEN"
	ErrUserNotFound       ErrCode = "USER_NOT_FOUND"
	ErrBookNotFound       ErrCode = "BOOK_NOT_FOUND"
	ErrInvalidCode        ErrCode = "INVALID_CODE"
	ErrInvitationNotFound ErrCode = "INVITATION_NOT_FOUND"
	ErrInvitationClosed   ErrCode = "INVITATION_CLOSED"
	ErrNotInvitee         ErrCode = "NOT_INVITEE"
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

// invitation codes look like "K7QX-M2PA"
const (
	codeAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codePartLen     = 4
	maxCodeAttempts = 10
)

var errCodeExhausted = errors.New("could not generate a unique invitation code")

// collaborators

type Users interface {
	ByEmail(ctx context.Context, email string) (*model.User, error)
	ByID(ctx context.Context, id int64) (*model.User, error)
}

type Books interface {
	ByID(ctx context.Context, id int64) (*model.Book, error)
}

type Winners interface {
	LatestWinner(ctx context.Context, clubID int64) (*votingrepo.ReadingRow, error)
}

// dto

type CreateInput struct {
	Title       string
	Genre       string
	Description string
	CoverImage  *string
}

type GenreGroup struct {
	Genre string             `json:"genre"`
	Count int                `json:"count"`
	Clubs []clubrepo.ClubRow `json:"clubs"`
}

type Detail struct {
	*model.Club
	UserCount   int64                  `json:"user_count"`
	CurrentBook *votingrepo.ReadingRow `json:"current_book"`
}

type Service interface {
	Create(ctx context.Context, userID int64, in CreateInput) (*model.Club, error)
	List(ctx context.Context) ([]clubrepo.ClubRow, error)
	ByGenre(ctx context.Context) ([]GenreGroup, error)
	Mine(ctx context.Context, userID int64) ([]clubrepo.ClubRow, error)
	Detail(ctx context.Context, clubID int64) (*Detail, error)

	Join(ctx context.Context, clubID, userID int64) (*model.Membership, error)
	Leave(ctx context.Context, clubID, userID int64) error
	Membership(ctx context.Context, clubID, userID int64) (*model.Membership, error)
	Members(ctx context.Context, clubID int64) ([]model.Membership, error)
	// AssignBook sets the book target is reading for the club. Members may
	// set their own; admins may set anyone's.
	AssignBook(ctx context.Context, clubID, actorID, targetID, bookID int64) (*model.Book, error)

	ShareCode(ctx context.Context, clubID int64) (string, error)
	ByShareCode(ctx context.Context, code string) (*Detail, error)

	Invite(ctx context.Context, clubID, inviterID int64, email string) (*model.Invitation, error)
	PendingInvitations(ctx context.Context, userID int64) ([]model.Invitation, error)
	InvitationByCode(ctx context.Context, code string) (*model.Invitation, error)
	Accept(ctx context.Context, invitationID, userID int64) (*model.Invitation, error)
	Reject(ctx context.Context, invitationID, userID int64) error
}

type service struct {
	r       clubrepo.Repo
	users   Users
	books   Books
	winners Winners
	mail    mailer.Sender
	log     *slog.Logger
	now     func() time.Time
}

func New(r clubrepo.Repo, users Users, books Books, winners Winners, mail mailer.Sender, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	if mail == nil {
		mail = mailer.NewLog(log)
	}
	return &service{
		r:       r,
		users:   users,
		books:   books,
		winners: winners,
		mail:    mail,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) Create(ctx context.Context, userID int64, in CreateInput) (*model.Club, error) {
	title := strings.TrimSpace(in.Title)
	genre := strings.TrimSpace(in.Genre)
	if title == "" || genre == "" {
		return nil, makeErr(ErrBadInput)
	}

	now := s.now()
	c := &model.Club{
		Title:           title,
		Genre:           genre,
		Description:     strings.TrimSpace(in.Description),
		CoverImage:      in.CoverImage,
		CreatedByUserID: userID,
		CreatedAt:       now,
	}
	admin := &model.Membership{UserID: userID, Role: model.RoleAdmin, AddedAt: now}
	if err := s.r.Create(ctx, c, admin); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *service) List(ctx context.Context) ([]clubrepo.ClubRow, error) {
	out, err := s.r.List(ctx)
	if out == nil {
		out = []clubrepo.ClubRow{}
	}
	return out, err
}

func (s *service) ByGenre(ctx context.Context) ([]GenreGroup, error) {
	rows, err := s.r.List(ctx)
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	groups := []GenreGroup{}
	for _, row := range rows {
		i, ok := idx[row.Genre]
		if !ok {
			i = len(groups)
			idx[row.Genre] = i
			groups = append(groups, GenreGroup{Genre: row.Genre})
		}
		groups[i].Clubs = append(groups[i].Clubs, row)
		groups[i].Count++
	}
	sort.SliceStable(groups, func(a, b int) bool { return groups[a].Genre < groups[b].Genre })
	return groups, nil
}

func (s *service) Mine(ctx context.Context, userID int64) ([]clubrepo.ClubRow, error) {
	out, err := s.r.ClubsOf(ctx, userID)
	if out == nil {
		out = []clubrepo.ClubRow{}
	}
	return out, err
}

func (s *service) Detail(ctx context.Context, clubID int64) (*Detail, error) {
	c, err := s.r.ByID(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, makeErr(ErrNotFound)
	}
	n, err := s.r.MemberCount(ctx, clubID)
	if err != nil {
		return nil, err
	}
	d := &Detail{Club: c, UserCount: n}
	if s.winners != nil {
		if d.CurrentBook, err = s.winners.LatestWinner(ctx, clubID); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (s *service) Join(ctx context.Context, clubID, userID int64) (*model.Membership, error) {
	c, err := s.r.ByID(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, makeErr(ErrNotFound)
	}

	m := &model.Membership{ClubID: clubID, UserID: userID, Role: model.RoleUser, AddedAt: s.now()}
	if err := s.r.AddMember(ctx, m); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, makeErr(ErrAlreadyMember)
		}
		return nil, err
	}
	return m, nil
}

func (s *service) Leave(ctx context.Context, clubID, userID int64) error {
	ok, err := s.r.RemoveMember(ctx, clubID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return makeErr(ErrNotAMember)
	}
	return nil
}

// Membership returns nil when userID is not in the club.
func (s *service) Membership(ctx context.Context, clubID, userID int64) (*model.Membership, error) {
	return s.r.Membership(ctx, clubID, userID)
}

func (s *service) Members(ctx context.Context, clubID int64) ([]model.Membership, error) {
	c, err := s.r.ByID(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, makeErr(ErrNotFound)
	}
	out, err := s.r.Members(ctx, clubID)
	if out == nil {
		out = []model.Membership{}
	}
	return out, err
}

func (s *service) AssignBook(ctx context.Context, clubID, actorID, targetID, bookID int64) (*model.Book, error) {
	actor, err := s.r.Membership(ctx, clubID, actorID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, makeErr(ErrNotAMember)
	}
	if actorID != targetID && actor.Role != model.RoleAdmin {
		return nil, makeErr(ErrForbidden)
	}

	b, err := s.books.ByID(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, makeErr(ErrBookNotFound)
	}

	ok, err := s.r.AssignBook(ctx, clubID, targetID, &b.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, makeErr(ErrNotAMember)
	}
	return b, nil
}

func (s *service) ShareCode(ctx context.Context, clubID int64) (string, error) {
	c, err := s.r.ByID(ctx, clubID)
	if err != nil {
		return "", err
	}
	if c == nil {
		return "", makeErr(ErrNotFound)
	}
	return base64.StdEncoding.EncodeToString([]byte(strconv.FormatInt(clubID, 10))), nil
}

func (s *service) ByShareCode(ctx context.Context, code string) (*Detail, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(code))
	if err != nil {
		return nil, makeErr(ErrInvalidCode)
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || id <= 0 {
		return nil, makeErr(ErrInvalidCode)
	}
	return s.Detail(ctx, id)
}

func (s *service) Invite(ctx context.Context, clubID, inviterID int64, email string) (*model.Invitation, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, makeErr(ErrBadInput)
	}
	c, err := s.r.ByID(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, makeErr(ErrNotFound)
	}
	ok, err := s.r.IsMember(ctx, nil, clubID, inviterID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, makeErr(ErrNotAMember)
	}

	invitee, err := s.users.ByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if invitee == nil {
		return nil, makeErr(ErrUserNotFound)
	}
	if ok, err := s.r.IsMember(ctx, nil, clubID, invitee.ID); err != nil {
		return nil, err
	} else if ok {
		return nil, makeErr(ErrAlreadyMember)
	}

	// a second invite to the same person returns the pending one
	if inv, err := s.r.PendingInvitation(ctx, clubID, invitee.ID); err != nil || inv != nil {
		return inv, err
	}

	code, err := s.uniqueCode(ctx)
	if err != nil {
		return nil, err
	}
	inv := &model.Invitation{
		ClubID:          clubID,
		InvitedUserID:   invitee.ID,
		InvitedByUserID: inviterID,
		InvitedAt:       s.now(),
		Status:          model.InvitationPending,
		Code:            code,
	}
	if err := s.r.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}

	inviterName := ""
	if u, err := s.users.ByID(ctx, inviterID); err == nil && u != nil {
		inviterName = u.Username
	}
	if err := s.mail.SendInvitation(ctx, mailer.Invite{
		To:        invitee.Email,
		ClubTitle: c.Title,
		InvitedBy: inviterName,
		Code:      code,
	}); err != nil {
		s.log.Warn("invitation email failed", "invitation_id", inv.ID, "err", err)
	}
	return inv, nil
}

func (s *service) uniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := newInvitationCode()
		if err != nil {
			return "", err
		}
		taken, err := s.r.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", errCodeExhausted
}

func newInvitationCode() (string, error) {
	size := big.NewInt(int64(len(codeAlphabet)))
	var b strings.Builder
	for i := 0; i < 2*codePartLen; i++ {
		if i == codePartLen {
			b.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func (s *service) PendingInvitations(ctx context.Context, userID int64) ([]model.Invitation, error) {
	out, err := s.r.PendingFor(ctx, userID)
	if out == nil {
		out = []model.Invitation{}
	}
	return out, err
}

func (s *service) InvitationByCode(ctx context.Context, code string) (*model.Invitation, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, makeErr(ErrBadInput)
	}
	inv, err := s.r.PendingByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, makeErr(ErrInvitationNotFound)
	}
	return inv, nil
}

// pending loads an invitation that userID may still answer.
func (s *service) pending(ctx context.Context, invitationID, userID int64) (*model.Invitation, error) {
	inv, err := s.r.InvitationByID(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, makeErr(ErrInvitationNotFound)
	}
	if inv.InvitedUserID != userID {
		return nil, makeErr(ErrNotInvitee)
	}
	if inv.Status != model.InvitationPending {
		return nil, makeErr(ErrInvitationClosed)
	}
	return inv, nil
}

func (s *service) Accept(ctx context.Context, invitationID, userID int64) (*model.Invitation, error) {
	inv, err := s.pending(ctx, invitationID, userID)
	if err != nil {
		return nil, err
	}
	m := &model.Membership{ClubID: inv.ClubID, UserID: userID, Role: model.RoleUser, AddedAt: s.now()}
	if err := s.r.Accept(ctx, inv, m); err != nil {
		return nil, err
	}
	inv.Status = model.InvitationAccepted
	return inv, nil
}

func (s *service) Reject(ctx context.Context, invitationID, userID int64) error {
	inv, err := s.pending(ctx, invitationID, userID)
	if err != nil {
		return err
	}
	return s.r.SetInvitationStatus(ctx, inv.ID, model.InvitationRejected)
}
