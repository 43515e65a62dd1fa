package commands

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mealstack/mealstack/internal/domain"
	"github.com/mealstack/mealstack/internal/domain/mealplan"
	"github.com/mealstack/mealstack/internal/shared/domain/events"
)

// fakeTx satisfies pgx.Tx for unit tests; the memory store and fake side
// tables ignore it.
type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}
func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}
func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *fakeTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not implemented")
}
func (t *fakeTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return errRow{} }
func (t *fakeTx) Conn() *pgx.Conn                                               { return nil }

type errRow struct{}

func (errRow) Scan(dest ...any) error { return errors.New("not implemented") }

// fakeBeginner hands out fake transactions.
type fakeBeginner struct{}

func (fakeBeginner) Begin(ctx context.Context) (pgx.Tx, error) { return &fakeTx{}, nil }

// fakeSideTables is an in-memory SideTables with the same constraint
// semantics as the Postgres implementation.
type fakeSideTables struct {
	mu        sync.Mutex
	emails    map[string]uuid.UUID
	counts    map[uuid.UUID]int
	favorites map[uuid.UUID]map[uuid.UUID]string
}

func newFakeSideTables() *fakeSideTables {
	return &fakeSideTables{
		emails:    make(map[string]uuid.UUID),
		counts:    make(map[uuid.UUID]int),
		favorites: make(map[uuid.UUID]map[uuid.UUID]string),
	}
}

func (f *fakeSideTables) ReserveEmail(_ context.Context, _ pgx.Tx, email string, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, taken := f.emails[email]; taken {
		return domain.NewError(domain.ErrUniqueness, "email %s is already registered", email)
	}
	f.emails[email] = userID
	return nil
}

func (f *fakeSideTables) IncrementRecipeCount(_ context.Context, _ pgx.Tx, userID uuid.UUID, limit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[userID] >= limit {
		return domain.NewError(domain.ErrLimitExceeded, "recipe limit of %d for your tier has been reached", limit)
	}
	f.counts[userID]++
	return nil
}

func (f *fakeSideTables) DecrementRecipeCount(_ context.Context, _ pgx.Tx, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[userID] > 0 {
		f.counts[userID]--
	}
	return nil
}

func (f *fakeSideTables) AddFavorite(_ context.Context, _ pgx.Tx, userID, recipeID uuid.UUID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.favorites[userID] == nil {
		f.favorites[userID] = make(map[uuid.UUID]string)
	}
	f.favorites[userID][recipeID] = title
	return nil
}

func (f *fakeSideTables) RemoveFavorite(_ context.Context, _ pgx.Tx, userID, recipeID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.favorites[userID], recipeID)
	return nil
}

func (f *fakeSideTables) ListFavorites(_ context.Context, _ pgx.Tx, userID uuid.UUID) ([]mealplan.Favorite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	favs := make([]mealplan.Favorite, 0, len(f.favorites[userID]))
	for recipeID, title := range f.favorites[userID] {
		favs = append(favs, mealplan.Favorite{RecipeID: recipeID, Title: title})
	}
	sort.Slice(favs, func(i, j int) bool {
		return favs[i].RecipeID.String() < favs[j].RecipeID.String()
	})
	return favs, nil
}

// fakeOutbox records staged envelopes.
type fakeOutbox struct {
	mu      sync.Mutex
	entries []*events.Envelope
}

func (f *fakeOutbox) InsertInTx(_ context.Context, _ pgx.Tx, env *events.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, env)
	return nil
}
