package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library_backend/pkg/apperror"
	"library_backend/pkg/database/databasetest"
	"library_backend/pkg/models"
)

func setupStore(t *testing.T) (*Store, *models.Author) {
	store := NewStore(databasetest.New(t))
	author, err := store.CreateAuthor(context.Background(), AuthorInput{Name: "Ursula K. Le Guin"}, 1)
	require.NoError(t, err)
	return store, author
}

func createBook(t *testing.T, store *Store, author *models.Author, isbn string, copies int) *models.Book {
	book, err := store.CreateBook(context.Background(), BookInput{
		Title:       "The Dispossessed " + isbn,
		AuthorUid:   author.AuthorUid,
		ISBN:        isbn,
		Genre:       "Science Fiction",
		TotalCopies: copies,
	}, 1)
	require.NoError(t, err)
	return book
}

func TestCreateBookStartsFullyAvailable(t *testing.T) {
	store, author := setupStore(t)

	book := createBook(t, store, author, "9780060512750", 3)

	assert.Equal(t, 3, book.TotalCopies)
	assert.Equal(t, 3, book.AvailableCopies)
	assert.True(t, book.IsActive)
	assert.Equal(t, "Ursula K. Le Guin", book.Author.Name)
}

func TestCreateBookDuplicateISBN(t *testing.T) {
	store, author := setupStore(t)
	createBook(t, store, author, "9780060512750", 1)

	_, err := store.CreateBook(context.Background(), BookInput{
		Title:       "Another",
		AuthorUid:   author.AuthorUid,
		ISBN:        "9780060512750",
		Genre:       "Fantasy",
		TotalCopies: 1,
	}, 1)

	assert.True(t, apperror.Is(err, apperror.KindConflict, apperror.ReasonDuplicateField))
}

func TestCreateBookUnknownAuthor(t *testing.T) {
	store, _ := setupStore(t)

	_, err := store.CreateBook(context.Background(), BookInput{
		Title:       "Orphan",
		AuthorUid:   "0f8fad5b-d9cb-469f-a165-70867728950e",
		ISBN:        "1234567890",
		Genre:       "Drama",
		TotalCopies: 1,
	}, 1)

	assert.Equal(t, apperror.KindInvalidInput, apperror.KindOf(err))
}

func TestAdjustAvailableCopiesGuards(t *testing.T) {
	ctx := context.Background()
	store, author := setupStore(t)
	book := createBook(t, store, author, "9780060512750", 1)

	applied, err := store.AdjustAvailableCopies(ctx, book.ID, +1)
	require.NoError(t, err)
	assert.False(t, applied, "increment above totalCopies must be refused")

	applied, err = store.AdjustAvailableCopies(ctx, book.ID, -1)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = store.AdjustAvailableCopies(ctx, book.ID, -1)
	require.NoError(t, err)
	assert.False(t, applied, "decrement below zero must be refused")

	reloaded, err := store.FindBookByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.AvailableCopies)
}

func TestUpdateBookResizesCopies(t *testing.T) {
	ctx := context.Background()
	store, author := setupStore(t)
	book := createBook(t, store, author, "9780060512750", 3)

	_, err := store.AdjustAvailableCopies(ctx, book.ID, -2)
	require.NoError(t, err)

	total := 5
	updated, err := store.UpdateBook(ctx, book.BookUid, BookPatch{TotalCopies: &total})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.TotalCopies)
	assert.Equal(t, 3, updated.AvailableCopies)

	total = 1
	_, err = store.UpdateBook(ctx, book.BookUid, BookPatch{TotalCopies: &total})
	assert.True(t, apperror.Is(err, apperror.KindConflict, apperror.ReasonCopiesOnLoan))

	reloaded, err := store.FindBookByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, reloaded.TotalCopies)
	assert.Equal(t, 3, reloaded.AvailableCopies)
}

func TestFindBooksFiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	store, author := setupStore(t)
	createBook(t, store, author, "111", 1)
	createBook(t, store, author, "222", 1)
	hidden := createBook(t, store, author, "333", 1)
	require.NoError(t, store.DeactivateBook(ctx, hidden.BookUid))

	books, total, err := store.FindBooks(ctx, BookQuery{Search: "dispossessed", Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, books, 1)

	books, total, err = store.FindBooks(ctx, BookQuery{Genre: "Poetry"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, books)
}

func TestFindBookByUidRejectsMalformedID(t *testing.T) {
	store, _ := setupStore(t)

	_, err := store.FindBookByUid(context.Background(), "not-a-uuid")

	assert.Equal(t, apperror.KindInvalidInput, apperror.KindOf(err))
}

func TestDashboardAggregates(t *testing.T) {
	ctx := context.Background()
	store, author := setupStore(t)
	createBook(t, store, author, "111", 4)
	createBook(t, store, author, "222", 1)

	totals, err := store.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), totals.TotalCopies)
	assert.Equal(t, int64(5), totals.AvailableCopies)

	genres, err := store.PopularGenres(ctx, 5)
	require.NoError(t, err)
	require.Len(t, genres, 1)
	assert.Equal(t, "Science Fiction", genres[0].Genre)
	assert.Equal(t, int64(2), genres[0].BookCount)

	low, err := store.LowStockBooks(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "222", low[0].ISBN)
}

func TestUpdateAndDeactivateAuthor(t *testing.T) {
	ctx := context.Background()
	store, author := setupStore(t)

	name := "Ursula Le Guin"
	updated, err := store.UpdateAuthor(ctx, author.AuthorUid, AuthorPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)

	require.NoError(t, store.DeactivateAuthor(ctx, author.AuthorUid))
	authors, total, err := store.FindAuthors(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, authors)
}
