package votingsvc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"bookclub/model"
	bookrepo "bookclub/repository/book"
	clubrepo "bookclub/repository/club"
	"bookclub/repository/openlibrary"
	votingrepo "bookclub/repository/voting"
	booksvc "bookclub/service/book"
	"bookclub/util/cache"
	"bookclub/util/database"

	"github.com/stretchr/testify/require"
)

// offline catalog: every lookup misses, so winners come from the snapshot
type offlineCatalog struct{}

func (offlineCatalog) Search(ctx context.Context, q string, limit int) (*openlibrary.SearchResult, error) {
	return nil, openlibrary.ErrUpstream
}
func (offlineCatalog) ByISBN(ctx context.Context, isbn string) (*openlibrary.Book, error) {
	return nil, openlibrary.ErrNotFound
}
func (offlineCatalog) ByOLID(ctx context.Context, olid string) (*openlibrary.Book, error) {
	return nil, openlibrary.ErrNotFound
}
func (offlineCatalog) ByWorkKey(ctx context.Context, key string) (*openlibrary.Book, error) {
	return nil, openlibrary.ErrNotFound
}
func (offlineCatalog) CoverByISBN(isbn string) string { return "" }

type failingLibrary struct{}

func (failingLibrary) EnsureBook(ctx context.Context, snap model.BookSnapshot) (*model.Book, error) {
	return nil, errors.New("library offline")
}
func (failingLibrary) AddReadingFor(ctx context.Context, bookID int64, userIDs []int64) (int, int, error) {
	return 0, 0, errors.New("library offline")
}

const (
	alice int64 = 1
	bob   int64 = 2
	carol int64 = 3
	dave  int64 = 4 // never joins
)

type fixture struct {
	svc    *service
	db     *database.DB
	books  bookrepo.Repo
	clubs  clubrepo.Repo
	clubID int64
	clock  time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewMemory()
	require.NoError(t, err)
	t.Cleanup(db.Close)
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	for _, id := range []int64{alice, bob, carol, dave} {
		require.NoError(t, db.Gorm.Create(&model.User{
			ID:           id,
			Username:     fmt.Sprintf("user%d", id),
			Email:        fmt.Sprintf("user%d@example.com", id),
			PasswordHash: "x",
		}).Error)
	}

	clubs := clubrepo.New(db.Gorm)
	club := &model.Club{Title: "Sci-Fi", Genre: "Science Fiction", CreatedByUserID: alice, CreatedAt: time.Now()}
	require.NoError(t, clubs.Create(ctx, club, &model.Membership{UserID: alice, Role: model.RoleAdmin, AddedAt: time.Now()}))
	for _, id := range []int64{bob, carol} {
		require.NoError(t, clubs.AddMember(ctx, &model.Membership{ClubID: club.ID, UserID: id, Role: model.RoleUser, AddedAt: time.Now()}))
	}

	books := bookrepo.New(db.Gorm)
	lib := booksvc.New(books, offlineCatalog{}, cache.New[*openlibrary.SearchResult](time.Minute), log)

	f := &fixture{
		db:     db,
		books:  books,
		clubs:  clubs,
		clubID: club.ID,
		clock:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = New(db.Gorm, votingrepo.New(db.Gorm), clubs, books, lib, log).(*service)
	f.svc.now = func() time.Time {
		f.clock = f.clock.Add(time.Minute)
		return f.clock
	}
	return f
}

// favorite puts a book straight onto a user's favorites shelf.
func (f *fixture) favorite(t *testing.T, userID int64, isbn, title string) {
	t.Helper()
	ctx := context.Background()
	b, err := f.books.Ensure(ctx, &model.Book{ISBN: isbn, Title: title, Author: "Author of " + title, Cover: "cover-" + isbn})
	require.NoError(t, err)
	require.NoError(t, f.books.AddToShelf(ctx, &model.UserBook{UserID: userID, BookID: b.ID, Status: model.ShelfFavorite, AddedAt: time.Now()}))
}

func TestFullRound(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.favorite(t, alice, "111", "Dune")
	f.favorite(t, bob, "222", "Foundation")

	sess, err := f.svc.Start(ctx, f.clubID, alice, "  ")
	require.NoError(t, err)
	require.Equal(t, model.SessionProposing, sess.Status)
	require.Equal(t, DefaultSessionTitle, sess.Title)

	_, err = f.svc.Start(ctx, f.clubID, bob, "Another")
	require.Equal(t, ErrAlreadyActive, Code(err))

	pa, err := f.svc.Propose(ctx, f.clubID, alice, "111")
	require.NoError(t, err)
	require.Equal(t, ActionCreated, pa.Action)
	require.Equal(t, "Dune", pa.Proposal.Title)
	require.Equal(t, "Author of Dune", pa.Proposal.Author)
	require.Equal(t, "cover-111", pa.Proposal.CoverURL)

	pb, err := f.svc.Propose(ctx, f.clubID, bob, "222")
	require.NoError(t, err)

	_, err = f.svc.Vote(ctx, f.clubID, alice, pb.Proposal.ID)
	require.Equal(t, ErrWrongPhase, Code(err))

	opened, err := f.svc.OpenVoting(ctx, f.clubID, carol)
	require.NoError(t, err)
	require.Equal(t, model.SessionVoting, opened.Session.Status)
	require.NotNil(t, opened.Session.ProposingClosedAt)
	require.Equal(t, int64(2), opened.ProposalCount)

	_, err = f.svc.Propose(ctx, f.clubID, carol, "111")
	require.Equal(t, ErrWrongPhase, Code(err))

	v, err := f.svc.Vote(ctx, f.clubID, alice, pb.Proposal.ID)
	require.NoError(t, err)
	require.Equal(t, VoteResult{Action: ActionAdded, ProposalID: pb.Proposal.ID, VoteCount: 1}, *v)

	v, err = f.svc.Vote(ctx, f.clubID, bob, pb.Proposal.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), v.VoteCount)

	v, err = f.svc.Vote(ctx, f.clubID, carol, pa.Proposal.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), v.VoteCount)

	res, err := f.svc.Close(ctx, f.clubID, alice)
	require.NoError(t, err)
	require.Equal(t, model.SessionClosed, res.Session.Status)
	require.NotNil(t, res.Session.VotingClosedAt)
	require.Equal(t, pb.Proposal.ID, *res.Session.WinningProposalID)
	require.Equal(t, "Foundation", res.Winner.Title)
	require.Equal(t, int64(2), res.Winner.VoteCount)
	require.False(t, res.WasTie)
	require.Equal(t, 1, res.TiedProposalsCount)

	require.NotNil(t, res.Reading)
	require.Equal(t, 3, res.Reading.AddedToMembers)
	require.Equal(t, 0, res.Reading.AlreadyInList)
	require.Equal(t, 3, res.Reading.TotalMembers)
	for _, id := range []int64{alice, bob, carol} {
		on, err := f.books.OnShelf(ctx, nil, id, "222", model.ShelfReading)
		require.NoError(t, err)
		require.NotNil(t, on, "user %d", id)
	}

	winner, err := f.svc.r.ProposalByID(ctx, nil, pb.Proposal.ID)
	require.NoError(t, err)
	require.Equal(t, model.ProposalWinner, winner.Status)
	loser, err := f.svc.r.ProposalByID(ctx, nil, pa.Proposal.ID)
	require.NoError(t, err)
	require.Equal(t, model.ProposalActive, loser.Status)

	view, err := f.svc.Active(ctx, f.clubID, alice)
	require.NoError(t, err)
	require.False(t, view.Active)
	require.Empty(t, view.Proposals)

	list, err := f.svc.ReadingList(ctx, f.clubID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "222", list[0].ISBN)
	require.Equal(t, pb.Proposal.ID, list[0].ProposalID)

	// a closed session frees the club for the next round
	_, err = f.svc.Start(ctx, f.clubID, bob, "Round two")
	require.NoError(t, err)
}

func TestVoteToggleAndMove(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.favorite(t, alice, "111", "Dune")
	f.favorite(t, bob, "222", "Foundation")

	_, err := f.svc.Start(ctx, f.clubID, alice, "Pick")
	require.NoError(t, err)
	pa, err := f.svc.Propose(ctx, f.clubID, alice, "111")
	require.NoError(t, err)
	pb, err := f.svc.Propose(ctx, f.clubID, bob, "222")
	require.NoError(t, err)
	_, err = f.svc.OpenVoting(ctx, f.clubID, alice)
	require.NoError(t, err)

	v, err := f.svc.Vote(ctx, f.clubID, carol, pa.Proposal.ID)
	require.NoError(t, err)
	require.Equal(t, ActionAdded, v.Action)

	v, err = f.svc.Vote(ctx, f.clubID, carol, pb.Proposal.ID)
	require.NoError(t, err)
	require.Equal(t, ActionChanged, v.Action)
	require.Equal(t, int64(1), v.VoteCount)

	view, err := f.svc.Active(ctx, f.clubID, carol)
	require.NoError(t, err)
	require.True(t, view.Active)
	require.Equal(t, 2, view.ProposalCount)
	require.Nil(t, view.UserProposalID)
	require.Equal(t, pb.Proposal.ID, *view.UserVoteProposalID)
	counts := map[int64]int64{}
	for _, r := range view.Proposals {
		counts[r.ID] = r.VoteCount
	}
	require.Equal(t, map[int64]int64{pa.Proposal.ID: 0, pb.Proposal.ID: 1}, counts)

	v, err = f.svc.Vote(ctx, f.clubID, carol, pb.Proposal.ID)
	require.NoError(t, err)
	require.Equal(t, ActionRemoved, v.Action)
	require.Equal(t, int64(0), v.VoteCount)

	view, err = f.svc.Active(ctx, f.clubID, carol)
	require.NoError(t, err)
	require.Nil(t, view.UserVoteProposalID)

	view, err = f.svc.Active(ctx, f.clubID, alice)
	require.NoError(t, err)
	require.Equal(t, pa.Proposal.ID, *view.UserProposalID)
}

func TestProposeRules(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.favorite(t, alice, "111", "Dune")
	f.favorite(t, alice, "333", "Hyperion")
	f.favorite(t, bob, "111", "Dune")

	_, err := f.svc.Propose(ctx, f.clubID, alice, "111")
	require.Equal(t, ErrSessionNotFound, Code(err))

	_, err = f.svc.Start(ctx, f.clubID, alice, "Pick")
	require.NoError(t, err)

	_, err = f.svc.Propose(ctx, f.clubID, alice, " ")
	require.Equal(t, ErrBadInput, Code(err))

	_, err = f.svc.Propose(ctx, f.clubID, carol, "111")
	require.Equal(t, ErrNotFavorited, Code(err))

	_, err = f.svc.Propose(ctx, f.clubID, dave, "111")
	require.Equal(t, ErrNotAMember, Code(err))

	first, err := f.svc.Propose(ctx, f.clubID, alice, "111")
	require.NoError(t, err)

	_, err = f.svc.Propose(ctx, f.clubID, bob, "111")
	require.Equal(t, ErrDuplicateBook, Code(err))

	// proposing again replaces the user's own proposal
	again, err := f.svc.Propose(ctx, f.clubID, alice, "333")
	require.NoError(t, err)
	require.Equal(t, ActionUpdated, again.Action)
	require.Equal(t, first.Proposal.ID, again.Proposal.ID)
	require.Equal(t, "Hyperion", again.Proposal.Title)
	require.True(t, again.Proposal.ProposedAt.After(first.Proposal.ProposedAt))

	// the ISBN is free again
	_, err = f.svc.Propose(ctx, f.clubID, bob, "111")
	require.NoError(t, err)

	n, err := f.svc.r.CountProposals(ctx, nil, first.Proposal.SessionID)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestPhaseErrors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.OpenVoting(ctx, f.clubID, alice)
	require.Equal(t, ErrSessionNotFound, Code(err))
	_, err = f.svc.Close(ctx, f.clubID, alice)
	require.Equal(t, ErrSessionNotFound, Code(err))
	_, err = f.svc.Vote(ctx, f.clubID, alice, 1)
	require.Equal(t, ErrSessionNotFound, Code(err))

	_, err = f.svc.Start(ctx, f.clubID, dave, "x")
	require.Equal(t, ErrNotAMember, Code(err))

	_, err = f.svc.Start(ctx, f.clubID, alice, "x")
	require.NoError(t, err)

	_, err = f.svc.OpenVoting(ctx, f.clubID, alice)
	require.Equal(t, ErrNoProposals, Code(err))

	_, err = f.svc.Close(ctx, f.clubID, alice)
	require.Equal(t, ErrWrongPhase, Code(err))

	f.favorite(t, alice, "111", "Dune")
	p, err := f.svc.Propose(ctx, f.clubID, alice, "111")
	require.NoError(t, err)
	_, err = f.svc.OpenVoting(ctx, f.clubID, alice)
	require.NoError(t, err)

	_, err = f.svc.OpenVoting(ctx, f.clubID, alice)
	require.Equal(t, ErrWrongPhase, Code(err))

	_, err = f.svc.Vote(ctx, f.clubID, alice, p.Proposal.ID+100)
	require.Equal(t, ErrProposalNotFound, Code(err))

	_, err = f.svc.Vote(ctx, f.clubID, dave, p.Proposal.ID)
	require.Equal(t, ErrNotAMember, Code(err))
}

func TestVoteRejectsProposalFromOtherSession(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.favorite(t, alice, "111", "Dune")
	f.favorite(t, alice, "222", "Foundation")

	_, err := f.svc.Start(ctx, f.clubID, alice, "one")
	require.NoError(t, err)
	old, err := f.svc.Propose(ctx, f.clubID, alice, "111")
	require.NoError(t, err)
	_, err = f.svc.OpenVoting(ctx, f.clubID, alice)
	require.NoError(t, err)
	_, err = f.svc.Close(ctx, f.clubID, alice)
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, f.clubID, alice, "two")
	require.NoError(t, err)
	_, err = f.svc.Propose(ctx, f.clubID, alice, "222")
	require.NoError(t, err)
	_, err = f.svc.OpenVoting(ctx, f.clubID, alice)
	require.NoError(t, err)

	_, err = f.svc.Vote(ctx, f.clubID, bob, old.Proposal.ID)
	require.Equal(t, ErrProposalNotFound, Code(err))
}

func TestCloseTieGoesToEarliestProposal(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.favorite(t, alice, "111", "Dune")
	f.favorite(t, bob, "222", "Foundation")
	f.favorite(t, carol, "333", "Hyperion")

	_, err := f.svc.Start(ctx, f.clubID, alice, "Pick")
	require.NoError(t, err)
	// bob proposes first
	pb, err := f.svc.Propose(ctx, f.clubID, bob, "222")
	require.NoError(t, err)
	pa, err := f.svc.Propose(ctx, f.clubID, alice, "111")
	require.NoError(t, err)
	_, err = f.svc.Propose(ctx, f.clubID, carol, "333")
	require.NoError(t, err)
	_, err = f.svc.OpenVoting(ctx, f.clubID, alice)
	require.NoError(t, err)

	_, err = f.svc.Vote(ctx, f.clubID, alice, pa.Proposal.ID)
	require.NoError(t, err)
	_, err = f.svc.Vote(ctx, f.clubID, carol, pb.Proposal.ID)
	require.NoError(t, err)

	res, err := f.svc.Close(ctx, f.clubID, bob)
	require.NoError(t, err)
	require.Equal(t, pb.Proposal.ID, res.Winner.ID)
	require.True(t, res.WasTie)
	require.Equal(t, 2, res.TiedProposalsCount)
	require.Equal(t, int64(1), res.Winner.VoteCount)
}

func TestCloseWithNoVotes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.favorite(t, alice, "111", "Dune")
	f.favorite(t, bob, "222", "Foundation")

	_, err := f.svc.Start(ctx, f.clubID, alice, "Pick")
	require.NoError(t, err)
	pa, err := f.svc.Propose(ctx, f.clubID, alice, "111")
	require.NoError(t, err)
	_, err = f.svc.Propose(ctx, f.clubID, bob, "222")
	require.NoError(t, err)
	_, err = f.svc.OpenVoting(ctx, f.clubID, alice)
	require.NoError(t, err)

	res, err := f.svc.Close(ctx, f.clubID, alice)
	require.NoError(t, err)
	require.Equal(t, pa.Proposal.ID, res.Winner.ID)
	require.Equal(t, int64(0), res.Winner.VoteCount)
	require.True(t, res.WasTie)
	require.Equal(t, 2, res.TiedProposalsCount)
}

func TestCloseSurvivesLibraryFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.svc.library = failingLibrary{}
	f.favorite(t, alice, "111", "Dune")

	_, err := f.svc.Start(ctx, f.clubID, alice, "Pick")
	require.NoError(t, err)
	_, err = f.svc.Propose(ctx, f.clubID, alice, "111")
	require.NoError(t, err)
	_, err = f.svc.OpenVoting(ctx, f.clubID, alice)
	require.NoError(t, err)

	res, err := f.svc.Close(ctx, f.clubID, alice)
	require.NoError(t, err)
	require.Nil(t, res.Reading)
	require.Equal(t, model.SessionClosed, res.Session.Status)

	_, err = f.svc.AddWinnerToReading(ctx, f.clubID, alice, res.Winner.ID)
	require.Equal(t, ErrStorage, Code(err))
}

func TestAddWinnerToReading(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.favorite(t, alice, "111", "Dune")
	f.favorite(t, bob, "222", "Foundation")

	_, err := f.svc.Start(ctx, f.clubID, alice, "Pick")
	require.NoError(t, err)
	pa, err := f.svc.Propose(ctx, f.clubID, alice, "111")
	require.NoError(t, err)
	pb, err := f.svc.Propose(ctx, f.clubID, bob, "222")
	require.NoError(t, err)
	_, err = f.svc.OpenVoting(ctx, f.clubID, alice)
	require.NoError(t, err)
	_, err = f.svc.Vote(ctx, f.clubID, bob, pa.Proposal.ID)
	require.NoError(t, err)

	res, err := f.svc.Close(ctx, f.clubID, alice)
	require.NoError(t, err)
	require.Equal(t, pa.Proposal.ID, res.Winner.ID)

	again, err := f.svc.AddWinnerToReading(ctx, f.clubID, bob, pa.Proposal.ID)
	require.NoError(t, err)
	require.Equal(t, 0, again.AddedToMembers)
	require.Equal(t, 3, again.AlreadyInList)

	_, err = f.svc.AddWinnerToReading(ctx, f.clubID, bob, pb.Proposal.ID)
	require.Equal(t, ErrNotWinner, Code(err))

	_, err = f.svc.AddWinnerToReading(ctx, f.clubID, dave, pa.Proposal.ID)
	require.Equal(t, ErrNotAMember, Code(err))

	_, err = f.svc.AddWinnerToReading(ctx, f.clubID+1, alice, pa.Proposal.ID)
	require.Equal(t, ErrNotAMember, Code(err))
}

func TestPickWinner(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	row := func(id, votes int64, at time.Duration) votingrepo.ProposalRow {
		return votingrepo.ProposalRow{
			Proposal:  model.Proposal{ID: id, ProposedAt: t0.Add(at)},
			VoteCount: votes,
		}
	}

	tests := []struct {
		name   string
		rows   []votingrepo.ProposalRow
		wantID int64
		tied   int
	}{
		{"single", []votingrepo.ProposalRow{row(1, 0, 0)}, 1, 1},
		{"clear winner", []votingrepo.ProposalRow{row(1, 1, 0), row(2, 3, time.Hour), row(3, 2, 0)}, 2, 1},
		{"tie earliest wins", []votingrepo.ProposalRow{row(1, 2, time.Hour), row(2, 2, time.Minute), row(3, 1, 0)}, 2, 2},
		{"same instant lowest id", []votingrepo.ProposalRow{row(7, 1, 0), row(4, 1, 0)}, 4, 2},
		{"all zero", []votingrepo.ProposalRow{row(5, 0, time.Second), row(6, 0, 0)}, 6, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, tied := pickWinner(tt.rows)
			require.Equal(t, tt.wantID, w.ID)
			require.Equal(t, tt.tied, tied)
		})
	}
}

func TestStorageErrWraps(t *testing.T) {
	cause := errors.New("disk full")
	err := storageErr(cause)
	require.Equal(t, ErrStorage, Code(err))
	require.ErrorIs(t, err, cause)
	require.Equal(t, ErrWrongPhase, Code(storageErr(makeErr(ErrWrongPhase))))
	require.NoError(t, storageErr(nil))
}

func TestSameBookScenario(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.favorite(t, alice, "001", "Shared")
	f.favorite(t, bob, "001", "Shared")

	_, err := f.svc.Start(ctx, f.clubID, alice, "")
	require.NoError(t, err)
	pb, err := f.svc.Propose(ctx, f.clubID, bob, "001")
	require.NoError(t, err)
	_, err = f.svc.Propose(ctx, f.clubID, alice, "001")
	require.Equal(t, ErrDuplicateBook, Code(err))

	_, err = f.svc.OpenVoting(ctx, f.clubID, alice)
	require.NoError(t, err)
	_, err = f.svc.Vote(ctx, f.clubID, alice, pb.Proposal.ID)
	require.NoError(t, err)

	res, err := f.svc.Close(ctx, f.clubID, alice)
	require.NoError(t, err)
	require.Equal(t, pb.Proposal.ID, res.Winner.ID)
	require.Equal(t, int64(1), res.Winner.VoteCount)
	require.False(t, res.WasTie)
}
