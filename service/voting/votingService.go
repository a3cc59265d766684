package votingsvc

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"bookclub/model"
	votingrepo "bookclub/repository/voting"
	"bookclub/util/database"

	"gorm.io/gorm"
)

// errors used by controllers

type ErrCode string

const (
	ErrNotAMember       ErrCode = "NOT_A_MEMBER"
	ErrWrongPhase       ErrCode = "WRONG_PHASE"
	ErrAlreadyActive    ErrCode = "ALREADY_ACTIVE"
	ErrNoProposals      ErrCode = "NO_PROPOSALS"
	ErrDuplicateBook    ErrCode = "DUPLICATE_BOOK"
	ErrNotFavorited     ErrCode = "NOT_FAVORITED"
	ErrProposalNotFound ErrCode = "PROPOSAL_NOT_FOUND"
	ErrSessionNotFound  ErrCode = "SESSION_NOT_FOUND"
	ErrNotWinner        ErrCode = "NOT_WINNER"
	ErrBadInput         ErrCode = "BAD_INPUT"
	ErrStorage          ErrCode = "STORAGE_FAILURE"
	ErrUpstreamUnavail  ErrCode = "UPSTREAM_UNAVAILABLE"
)

const DefaultSessionTitle = "Book Selection"

type codedError struct {
	code ErrCode
	err  error
}

func (e codedError) Error() string {
	if e.err != nil {
		return string(e.code) + ": " + e.err.Error()
	}
	return string(e.code)
}
func (e codedError) Code() ErrCode { return e.code }
func (e codedError) Unwrap() error { return e.err }
func makeErr(c ErrCode) error      { return codedError{code: c} }

// Code extracts error code
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

// storageErr classifies anything that is not already a named outcome.
func storageErr(err error) error {
	if err == nil || Code(err) != "" {
		return err
	}
	return codedError{code: ErrStorage, err: err}
}

// collaborators

type MemberStore interface {
	IsMember(ctx context.Context, tx *gorm.DB, clubID, userID int64) (bool, error)
	MemberIDs(ctx context.Context, tx *gorm.DB, clubID int64) ([]int64, error)
}

type FavoriteStore interface {
	OnShelf(ctx context.Context, tx *gorm.DB, userID int64, isbn string, status model.ShelfStatus) (*model.UserBook, error)
}

// Library receives the winning book once a session closes.
type Library interface {
	EnsureBook(ctx context.Context, snap model.BookSnapshot) (*model.Book, error)
	AddReadingFor(ctx context.Context, bookID int64, userIDs []int64) (added, already int, err error)
}

// dto

type ProposeResult struct {
	Action   string          `json:"action"`
	Proposal *model.Proposal `json:"proposal"`
}

type OpenResult struct {
	Session       *model.VotingSession `json:"session"`
	ProposalCount int64                `json:"proposal_count"`
}

type VoteResult struct {
	Action     string `json:"action"`
	ProposalID int64  `json:"proposal_id"`
	VoteCount  int64  `json:"vote_count"`
}

type Winner struct {
	ID        int64  `json:"id"`
	ISBN      string `json:"isbn"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	CoverURL  string `json:"cover_url"`
	VoteCount int64  `json:"vote_count"`
}

type CloseResult struct {
	Session            *model.VotingSession `json:"session"`
	Winner             Winner               `json:"winner"`
	WasTie             bool                 `json:"was_tie"`
	TiedProposalsCount int                  `json:"tied_proposals_count"`
	Reading            *ReadingResult       `json:"reading,omitempty"`
}

type ActiveView struct {
	Active             bool                     `json:"active"`
	Session            *model.VotingSession     `json:"session,omitempty"`
	ProposalCount      int                      `json:"proposal_count"`
	Proposals          []votingrepo.ProposalRow `json:"proposals"`
	UserProposalID     *int64                   `json:"user_proposal_id"`
	UserVoteProposalID *int64                   `json:"user_vote_proposal_id"`
}

type ReadingResult struct {
	BookID         int64 `json:"book_id"`
	AddedToMembers int   `json:"added_to_members"`
	AlreadyInList  int   `json:"already_in_list"`
	TotalMembers   int   `json:"total_members"`
}

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionAdded   = "added"
	ActionRemoved = "removed"
	ActionChanged = "changed"
)

type Service interface {
	Start(ctx context.Context, clubID, userID int64, title string) (*model.VotingSession, error)
	Propose(ctx context.Context, clubID, userID int64, isbn string) (*ProposeResult, error)
	OpenVoting(ctx context.Context, clubID, userID int64) (*OpenResult, error)
	Vote(ctx context.Context, clubID, userID, proposalID int64) (*VoteResult, error)
	Close(ctx context.Context, clubID, userID int64) (*CloseResult, error)

	// Active returns the club's open session; viewerID 0 skips the
	// viewer-specific pointers.
	Active(ctx context.Context, clubID, viewerID int64) (*ActiveView, error)
	ReadingList(ctx context.Context, clubID int64) ([]votingrepo.ReadingRow, error)
	AddWinnerToReading(ctx context.Context, clubID, userID, proposalID int64) (*ReadingResult, error)
}

// ----- Service implementation -----

type service struct {
	db        *gorm.DB
	r         votingrepo.Repo
	members   MemberStore
	favorites FavoriteStore
	library   Library
	log       *slog.Logger
	now       func() time.Time
}

// New wires the engine. A nil library disables the post-close hook.
func New(db *gorm.DB, r votingrepo.Repo, members MemberStore, favorites FavoriteStore, library Library, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{
		db:        db,
		r:         r,
		members:   members,
		favorites: favorites,
		library:   library,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// inTx runs fn as one unit of work.
func (s *service) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return storageErr(s.db.WithContext(ctx).Transaction(fn))
}

func (s *service) requireMember(ctx context.Context, tx *gorm.DB, clubID, userID int64) error {
	ok, err := s.members.IsMember(ctx, tx, clubID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return makeErr(ErrNotAMember)
	}
	return nil
}

// openSession returns the club's non-closed session, which must be in want.
func (s *service) openSession(ctx context.Context, tx *gorm.DB, clubID int64, want model.SessionStatus) (*model.VotingSession, error) {
	sess, err := s.r.ActiveSession(ctx, tx, clubID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, makeErr(ErrSessionNotFound)
	}
	if sess.Status != want {
		return nil, makeErr(ErrWrongPhase)
	}
	return sess, nil
}

func (s *service) Start(ctx context.Context, clubID, userID int64, title string) (*model.VotingSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultSessionTitle
	}

	var out *model.VotingSession
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		if err := s.requireMember(ctx, tx, clubID, userID); err != nil {
			return err
		}
		active, err := s.r.ActiveSession(ctx, tx, clubID)
		if err != nil {
			return err
		}
		if active != nil {
			return makeErr(ErrAlreadyActive)
		}

		sess := &model.VotingSession{
			ClubID:    clubID,
			Status:    model.SessionProposing,
			Title:     title,
			CreatedAt: s.now(),
		}
		if err := s.r.CreateSession(ctx, tx, sess); err != nil {
			// a concurrent start won the open-session index
			if database.IsUniqueViolation(err) {
				return makeErr(ErrAlreadyActive)
			}
			return err
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Propose(ctx context.Context, clubID, userID int64, isbn string) (*ProposeResult, error) {
	isbn = strings.TrimSpace(isbn)
	if isbn == "" {
		return nil, makeErr(ErrBadInput)
	}

	var out *ProposeResult
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		if err := s.requireMember(ctx, tx, clubID, userID); err != nil {
			return err
		}
		sess, err := s.openSession(ctx, tx, clubID, model.SessionProposing)
		if err != nil {
			return err
		}

		fav, err := s.favorites.OnShelf(ctx, tx, userID, isbn, model.ShelfFavorite)
		if err != nil {
			return err
		}
		if fav == nil || fav.Book == nil {
			return makeErr(ErrNotFavorited)
		}

		mine, err := s.r.ProposalByUser(ctx, tx, sess.ID, userID)
		if err != nil {
			return err
		}
		taken, err := s.r.ProposalByISBN(ctx, tx, sess.ID, isbn)
		if err != nil {
			return err
		}
		if taken != nil && (mine == nil || taken.ID != mine.ID) {
			return makeErr(ErrDuplicateBook)
		}

		action := ActionUpdated
		if mine == nil {
			action = ActionCreated
			mine = &model.Proposal{
				ClubID:           clubID,
				SessionID:        sess.ID,
				ProposedByUserID: userID,
				Status:           model.ProposalActive,
			}
		}
		mine.ISBN = fav.Book.ISBN
		mine.Title = fav.Book.Title
		mine.Author = fav.Book.Author
		mine.CoverURL = fav.Book.Cover
		mine.ProposedAt = s.now()

		if action == ActionCreated {
			err = s.r.CreateProposal(ctx, tx, mine)
		} else {
			err = s.r.SaveProposal(ctx, tx, mine)
		}
		if err != nil {
			if database.IsUniqueViolation(err) {
				return makeErr(ErrDuplicateBook)
			}
			return err
		}
		out = &ProposeResult{Action: action, Proposal: mine}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) OpenVoting(ctx context.Context, clubID, userID int64) (*OpenResult, error) {
	var out *OpenResult
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		if err := s.requireMember(ctx, tx, clubID, userID); err != nil {
			return err
		}
		sess, err := s.openSession(ctx, tx, clubID, model.SessionProposing)
		if err != nil {
			return err
		}
		n, err := s.r.CountProposals(ctx, tx, sess.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return makeErr(ErrNoProposals)
		}

		now := s.now()
		sess.Status = model.SessionVoting
		sess.ProposingClosedAt = &now
		if err := s.r.SaveSession(ctx, tx, sess); err != nil {
			return err
		}
		out = &OpenResult{Session: sess, ProposalCount: n}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Vote(ctx context.Context, clubID, userID, proposalID int64) (*VoteResult, error) {
	var out *VoteResult
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		if err := s.requireMember(ctx, tx, clubID, userID); err != nil {
			return err
		}
		sess, err := s.openSession(ctx, tx, clubID, model.SessionVoting)
		if err != nil {
			return err
		}
		p, err := s.r.ProposalByID(ctx, tx, proposalID)
		if err != nil {
			return err
		}
		if p == nil || p.SessionID != sess.ID {
			return makeErr(ErrProposalNotFound)
		}

		existing, err := s.r.VoteByUser(ctx, tx, sess.ID, userID)
		if err != nil {
			return err
		}

		var action string
		switch {
		case existing == nil:
			action = ActionAdded
			err = s.r.CreateVote(ctx, tx, &model.Vote{
				SessionID:  sess.ID,
				ProposalID: proposalID,
				UserID:     userID,
				VotedAt:    s.now(),
			})
		case existing.ProposalID == proposalID:
			action = ActionRemoved
			err = s.r.DeleteVote(ctx, tx, existing.ID)
		default:
			action = ActionChanged
			existing.ProposalID = proposalID
			existing.VotedAt = s.now()
			err = s.r.SaveVote(ctx, tx, existing)
		}
		if err != nil {
			return err
		}

		n, err := s.r.CountVotes(ctx, tx, proposalID)
		if err != nil {
			return err
		}
		out = &VoteResult{Action: action, ProposalID: proposalID, VoteCount: n}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// pickWinner returns the proposal with the most votes and the size of the
// tie at the top. Ties go to the earliest proposal, then the lowest id.
func pickWinner(rows []votingrepo.ProposalRow) (votingrepo.ProposalRow, int) {
	var max int64 = -1
	for _, r := range rows {
		if r.VoteCount > max {
			max = r.VoteCount
		}
	}
	var top []votingrepo.ProposalRow
	for _, r := range rows {
		if r.VoteCount == max {
			top = append(top, r)
		}
	}
	sort.Slice(top, func(i, j int) bool {
		if !top[i].ProposedAt.Equal(top[j].ProposedAt) {
			return top[i].ProposedAt.Before(top[j].ProposedAt)
		}
		return top[i].ID < top[j].ID
	})
	return top[0], len(top)
}

func (s *service) Close(ctx context.Context, clubID, userID int64) (*CloseResult, error) {
	var out *CloseResult
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		if err := s.requireMember(ctx, tx, clubID, userID); err != nil {
			return err
		}
		sess, err := s.openSession(ctx, tx, clubID, model.SessionVoting)
		if err != nil {
			return err
		}
		rows, err := s.r.Proposals(ctx, tx, sess.ID)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return makeErr(ErrNoProposals)
		}

		win, tied := pickWinner(rows)

		now := s.now()
		sess.Status = model.SessionClosed
		sess.VotingClosedAt = &now
		sess.WinningProposalID = &win.ID
		if err := s.r.SaveSession(ctx, tx, sess); err != nil {
			return err
		}
		p := win.Proposal
		p.Status = model.ProposalWinner
		if err := s.r.SaveProposal(ctx, tx, &p); err != nil {
			return err
		}

		out = &CloseResult{
			Session: sess,
			Winner: Winner{
				ID:        p.ID,
				ISBN:      p.ISBN,
				Title:     p.Title,
				Author:    p.Author,
				CoverURL:  p.CoverURL,
				VoteCount: win.VoteCount,
			},
			WasTie:             tied > 1,
			TiedProposalsCount: tied,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.library != nil {
		res, err := s.addWinnerToReading(ctx, clubID, out.Winner.ID)
		if err != nil {
			s.log.Error("add winner to reading failed", "club_id", clubID, "proposal_id", out.Winner.ID, "err", err)
		} else {
			out.Reading = res
		}
	}
	return out, nil
}

func (s *service) Active(ctx context.Context, clubID, viewerID int64) (*ActiveView, error) {
	sess, err := s.r.ActiveSession(ctx, nil, clubID)
	if err != nil {
		return nil, storageErr(err)
	}
	if sess == nil {
		return &ActiveView{Active: false, Proposals: []votingrepo.ProposalRow{}}, nil
	}

	rows, err := s.r.Proposals(ctx, nil, sess.ID)
	if err != nil {
		return nil, storageErr(err)
	}
	if rows == nil {
		rows = []votingrepo.ProposalRow{}
	}
	view := &ActiveView{Active: true, Session: sess, ProposalCount: len(rows), Proposals: rows}
	if viewerID == 0 {
		return view, nil
	}

	for _, r := range rows {
		if r.ProposedByUserID == viewerID {
			id := r.ID
			view.UserProposalID = &id
			break
		}
	}
	if sess.Status == model.SessionVoting {
		v, err := s.r.VoteByUser(ctx, nil, sess.ID, viewerID)
		if err != nil {
			return nil, storageErr(err)
		}
		if v != nil {
			id := v.ProposalID
			view.UserVoteProposalID = &id
		}
	}
	return view, nil
}

func (s *service) ReadingList(ctx context.Context, clubID int64) ([]votingrepo.ReadingRow, error) {
	rows, err := s.r.ReadingList(ctx, clubID)
	return rows, storageErr(err)
}

func (s *service) AddWinnerToReading(ctx context.Context, clubID, userID, proposalID int64) (*ReadingResult, error) {
	if err := s.requireMember(ctx, nil, clubID, userID); err != nil {
		return nil, storageErr(err)
	}
	if s.library == nil {
		return nil, makeErr(ErrUpstreamUnavail)
	}
	return s.addWinnerToReading(ctx, clubID, proposalID)
}

// addWinnerToReading runs outside any engine transaction; the library may
// call the catalog.
func (s *service) addWinnerToReading(ctx context.Context, clubID, proposalID int64) (*ReadingResult, error) {
	p, err := s.r.ProposalByID(ctx, nil, proposalID)
	if err != nil {
		return nil, storageErr(err)
	}
	if p == nil || p.ClubID != clubID {
		return nil, makeErr(ErrProposalNotFound)
	}
	if p.Status != model.ProposalWinner {
		return nil, makeErr(ErrNotWinner)
	}

	book, err := s.library.EnsureBook(ctx, model.BookSnapshot{
		ISBN:     p.ISBN,
		Title:    p.Title,
		Author:   p.Author,
		CoverURL: p.CoverURL,
	})
	if err != nil {
		return nil, storageErr(err)
	}
	ids, err := s.members.MemberIDs(ctx, nil, clubID)
	if err != nil {
		return nil, storageErr(err)
	}
	added, already, err := s.library.AddReadingFor(ctx, book.ID, ids)
	if err != nil {
		return nil, storageErr(err)
	}
	return &ReadingResult{
		BookID:         book.ID,
		AddedToMembers: added,
		AlreadyInList:  already,
		TotalMembers:   len(ids),
	}, nil
}
