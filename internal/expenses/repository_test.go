package expenses

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"budget/internal/core"
	"budget/internal/recordstore"
	"budget/internal/recordstore/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var (
	alice = &core.Principal{ID: "u1", DisplayName: "Alice", Role: core.RoleUser}
	bob   = &core.Principal{ID: "u2", DisplayName: "Bob", Role: core.RoleUser}
	admin = &core.Principal{ID: "a1", DisplayName: "Admin", Role: core.RoleAdmin}
)

type RepositoryTestSuite struct {
	suite.Suite
	ctx    context.Context
	store  *memory.Store
	repo   *Repository
	clock  time.Time
	seq    int
	events []Event
}

func (s *RepositoryTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.clock = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	s.seq = 0
	s.events = nil

	repo, err := New(s.ctx, s.store,
		WithClock(func() time.Time { return s.clock }),
		WithIDGenerator(func() string { s.seq++; return fmt.Sprintf("exp-%d", s.seq) }),
		WithNotifier(NotifierFunc(func(_ context.Context, ev Event) error {
			s.events = append(s.events, ev)
			return nil
		})),
	)
	s.Require().NoError(err)
	s.repo = repo
}

func TestRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}

func pens() core.Draft {
	return core.Draft{
		OccurredOn: core.NewDate(2024, 1, 10),
		ItemName:   "Pens",
		Amount:     decimal.NewFromInt(50),
		Category:   "Year 1",
	}
}

func amountPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func (s *RepositoryTestSuite) TestCreateAssignsOwnership() {
	e, err := s.repo.Create(s.ctx, alice, pens())
	s.Require().NoError(err)

	s.Equal("exp-1", e.ID)
	s.Equal("u1", e.OwnerID)
	s.Equal("Alice", e.OwnerDisplayName)
	s.Equal(e.CreatedAt, e.UpdatedAt)
	s.Equal([]core.Expense{e}, s.repo.List())

	s.Require().Len(s.events, 1)
	s.Equal(EventCreated, s.events[0].Kind)
	s.Equal("u1", s.events[0].ActorID)
}

func (s *RepositoryTestSuite) TestCreateRequiresPrincipal() {
	_, err := s.repo.Create(s.ctx, nil, pens())
	s.ErrorIs(err, core.ErrNotAuthenticated)

	_, err = s.repo.Create(s.ctx, &core.Principal{}, pens())
	s.ErrorIs(err, core.ErrNotAuthenticated)
	s.Empty(s.repo.List())
}

func (s *RepositoryTestSuite) TestCreateValidatesDraft() {
	d := pens()
	d.Amount = decimal.NewFromInt(-1)
	_, err := s.repo.Create(s.ctx, alice, d)
	s.True(core.IsValidationError(err))

	d = pens()
	d.ItemName = "   "
	_, err = s.repo.Create(s.ctx, alice, d)
	s.True(core.IsValidationError(err))
	s.Empty(s.repo.List())
}

// User A creates, user B is refused, an admin may edit and ownership stays.
func (s *RepositoryTestSuite) TestOwnerOrAdminScenario() {
	e, err := s.repo.Create(s.ctx, alice, pens())
	s.Require().NoError(err)

	_, err = s.repo.Update(s.ctx, bob, e.ID, core.Patch{Amount: amountPtr(60)})
	s.ErrorIs(err, core.ErrForbidden)

	s.clock = s.clock.Add(time.Minute)
	updated, err := s.repo.Update(s.ctx, admin, e.ID, core.Patch{Amount: amountPtr(75)})
	s.Require().NoError(err)
	s.True(updated.Amount.Equal(decimal.NewFromInt(75)))
	s.Equal("u1", updated.OwnerID)
	s.Equal("Alice", updated.OwnerDisplayName)
	s.Equal(e.CreatedAt, updated.CreatedAt)
	s.True(updated.UpdatedAt.After(e.UpdatedAt))
}

func (s *RepositoryTestSuite) TestUpdateAdvancesUpdatedAtWithFrozenClock() {
	e, err := s.repo.Create(s.ctx, alice, pens())
	s.Require().NoError(err)

	first, err := s.repo.Update(s.ctx, alice, e.ID, core.Patch{})
	s.Require().NoError(err)
	second, err := s.repo.Update(s.ctx, alice, e.ID, core.Patch{})
	s.Require().NoError(err)

	s.True(first.UpdatedAt.After(e.UpdatedAt))
	s.True(second.UpdatedAt.After(first.UpdatedAt))
}

func (s *RepositoryTestSuite) TestDeleteEventIsNewerThanLastUpdate() {
	e, err := s.repo.Create(s.ctx, alice, pens())
	s.Require().NoError(err)
	updated, err := s.repo.Update(s.ctx, alice, e.ID, core.Patch{})
	s.Require().NoError(err)
	s.Require().NoError(s.repo.Delete(s.ctx, alice, e.ID))

	s.Require().Len(s.events, 3)
	deleted := s.events[2]
	s.Equal(EventDeleted, deleted.Kind)
	s.True(deleted.At.After(updated.UpdatedAt), "delete at %v, last update %v", deleted.At, updated.UpdatedAt)
}

func (s *RepositoryTestSuite) TestUpdateKeepsUnpatchedFields() {
	e, err := s.repo.Create(s.ctx, alice, pens())
	s.Require().NoError(err)

	name := " Markers "
	updated, err := s.repo.Update(s.ctx, alice, e.ID, core.Patch{ItemName: &name})
	s.Require().NoError(err)
	s.Equal("Markers", updated.ItemName)
	s.Equal(e.Category, updated.Category)
	s.True(e.Amount.Equal(updated.Amount))
	s.Equal(e.OccurredOn, updated.OccurredOn)
}

func (s *RepositoryTestSuite) TestUpdateValidatesPatch() {
	e, err := s.repo.Create(s.ctx, alice, pens())
	s.Require().NoError(err)

	_, err = s.repo.Update(s.ctx, alice, e.ID, core.Patch{Amount: amountPtr(-5)})
	s.True(core.IsValidationError(err))

	got, err := s.repo.Get(e.ID)
	s.Require().NoError(err)
	s.Equal(e, got)
}

func (s *RepositoryTestSuite) TestUnknownIDIsNotFoundBeforeForbidden() {
	_, err := s.repo.Create(s.ctx, alice, pens())
	s.Require().NoError(err)
	before := s.repo.List()

	_, err = s.repo.Update(s.ctx, bob, "missing", core.Patch{Amount: amountPtr(1)})
	s.ErrorIs(err, core.ErrNotFound)
	s.ErrorIs(s.repo.Delete(s.ctx, bob, "missing"), core.ErrNotFound)
	s.Equal(before, s.repo.List())
}

func (s *RepositoryTestSuite) TestDelete() {
	a, err := s.repo.Create(s.ctx, alice, pens())
	s.Require().NoError(err)
	b, err := s.repo.Create(s.ctx, bob, pens())
	s.Require().NoError(err)

	s.ErrorIs(s.repo.Delete(s.ctx, bob, a.ID), core.ErrForbidden)
	s.Require().NoError(s.repo.Delete(s.ctx, alice, a.ID))
	s.Require().NoError(s.repo.Delete(s.ctx, admin, b.ID))

	s.Empty(s.repo.List())
	_, err = s.repo.Get(a.ID)
	s.ErrorIs(err, core.ErrNotFound)

	s.Require().Len(s.events, 4)
	s.Equal(EventDeleted, s.events[2].Kind)
	s.Equal(a.ID, s.events[2].Expense.ID)
}

func (s *RepositoryTestSuite) TestPersistenceFailureRollsBack() {
	e, err := s.repo.Create(s.ctx, alice, pens())
	s.Require().NoError(err)
	before := s.repo.List()
	eventsBefore := len(s.events)

	s.store.FailWrites(errors.New("disk full"))

	_, err = s.repo.Create(s.ctx, alice, pens())
	s.ErrorIs(err, core.ErrPersistence)

	_, err = s.repo.Update(s.ctx, alice, e.ID, core.Patch{Amount: amountPtr(99)})
	s.ErrorIs(err, core.ErrPersistence)

	s.ErrorIs(s.repo.Delete(s.ctx, alice, e.ID), core.ErrPersistence)

	s.Equal(before, s.repo.List())
	s.Len(s.events, eventsBefore)

	// The in-memory state still matches what a fresh load sees.
	s.store.FailWrites(nil)
	reloaded, err := New(s.ctx, s.store)
	s.Require().NoError(err)
	s.Equal(len(before), len(reloaded.List()))
	s.Equal(before[0].ID, reloaded.List()[0].ID)
}

func (s *RepositoryTestSuite) TestIfUnmodified() {
	e, err := s.repo.Create(s.ctx, alice, pens())
	s.Require().NoError(err)

	s.clock = s.clock.Add(time.Second)
	_, err = s.repo.Update(s.ctx, alice, e.ID, core.Patch{Amount: amountPtr(10)}, IfUnmodified(e.UpdatedAt))
	s.Require().NoError(err)

	_, err = s.repo.Update(s.ctx, alice, e.ID, core.Patch{Amount: amountPtr(20)}, IfUnmodified(e.UpdatedAt))
	s.ErrorIs(err, core.ErrConflict)
	s.ErrorIs(s.repo.Delete(s.ctx, alice, e.ID, IfUnmodified(e.UpdatedAt)), core.ErrConflict)
}

func (s *RepositoryTestSuite) TestFilter() {
	_, err := s.repo.Create(s.ctx, alice, pens())
	s.Require().NoError(err)
	d := pens()
	d.Category = "Year 2"
	_, err = s.repo.Create(s.ctx, bob, d)
	s.Require().NoError(err)

	cat := "Year 2"
	got := s.repo.Filter(core.Predicate{Category: &cat})
	s.Require().Len(got, 1)
	s.Equal("u2", got[0].OwnerID)

	lower := "year 2"
	s.Empty(s.repo.Filter(core.Predicate{Category: &lower}))
}

func (s *RepositoryTestSuite) TestListReturnsCopy() {
	_, err := s.repo.Create(s.ctx, alice, pens())
	s.Require().NoError(err)

	list := s.repo.List()
	list[0].OwnerID = "mallory"
	s.Equal("u1", s.repo.List()[0].OwnerID)
}

func (s *RepositoryTestSuite) TestClose() {
	s.Require().NoError(s.repo.Close())
	_, err := s.repo.Create(s.ctx, alice, pens())
	s.ErrorIs(err, ErrClosed)
}

func TestNotifierFailureDoesNotFailMutation(t *testing.T) {
	repo, err := New(context.Background(), memory.New(),
		WithNotifier(NotifierFunc(func(context.Context, Event) error { return errors.New("broker down") })))
	require.NoError(t, err)

	e, err := repo.Create(context.Background(), alice, pens())
	require.NoError(t, err)
	assert.Len(t, repo.List(), 1)
	assert.Equal(t, "u1", e.OwnerID)
}

func TestNewLoadsPersistedCollection(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.Set(ctx, recordstore.KeyExpenses, []byte(`[
		{"id":"x","occurredOn":"2024-01-10","itemName":"Pens","amount":"50","category":"Year 1",
		 "ownerId":"u1","ownerDisplayName":"Alice","createdAt":"2024-01-10T09:00:00Z","updatedAt":"2024-01-10T09:00:00Z"}
	]`)))

	repo, err := New(ctx, store)
	require.NoError(t, err)

	got, err := repo.Get("x")
	require.NoError(t, err)
	assert.Equal(t, core.NewDate(2024, 1, 10), got.OccurredOn)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(50)))
}

func TestNewRejectsCorruptCollection(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.Set(ctx, recordstore.KeyExpenses, []byte(`{not json`)))

	_, err := New(ctx, store)
	assert.ErrorIs(t, err, core.ErrPersistence)
}

func TestSnapshotSeesCommittedMutations(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	empty, err := Snapshot(ctx, store)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	repo, err := New(ctx, store)
	require.NoError(t, err)
	e, err := repo.Create(ctx, &core.Principal{ID: "u1", DisplayName: "Alice", Role: core.RoleUser}, pens())
	require.NoError(t, err)

	records, err := Snapshot(ctx, store)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, e.ID, records[0].ID)
}
