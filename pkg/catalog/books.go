// Package catalog stores books and authors and owns the book copy counters.
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"library_backend/pkg/apperror"
	"library_backend/pkg/models"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx binds the store to a running transaction.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

type BookQuery struct {
	Search          string
	Genre           string
	Page            int
	Limit           int
	IncludeInactive bool
}

type BookInput struct {
	Title       string
	AuthorUid   string
	ISBN        string
	Genre       string
	Publisher   string
	Pages       int
	Language    string
	Description string
	TotalCopies int
}

// BookPatch carries optional field changes; nil means unchanged.
type BookPatch struct {
	Title       *string
	AuthorUid   *string
	ISBN        *string
	Genre       *string
	Publisher   *string
	Pages       *int
	Language    *string
	Description *string
	TotalCopies *int
}

type GenreCount struct {
	Genre     string `json:"genre"`
	BookCount int64  `json:"count"`
}

type CopyTotals struct {
	TotalCopies     int64 `json:"totalCopies"`
	AvailableCopies int64 `json:"availableCopies"`
}

func (s *Store) FindBookByUid(ctx context.Context, bookUid string) (*models.Book, error) {
	bookUid, err := apperror.CanonicalUid("book", bookUid)
	if err != nil {
		return nil, err
	}
	var book models.Book
	err = s.db.WithContext(ctx).Preload("Author").Where("book_uid = ?", bookUid).First(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("book")
	}
	if err != nil {
		return nil, errors.Wrap(err, "find book")
	}
	return &book, nil
}

func (s *Store) FindBookByID(ctx context.Context, id uint) (*models.Book, error) {
	var book models.Book
	err := s.db.WithContext(ctx).Preload("Author").First(&book, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("book")
	}
	if err != nil {
		return nil, errors.Wrap(err, "find book")
	}
	return &book, nil
}

// FindBooks returns one page of books, newest first, and the total match count.
func (s *Store) FindBooks(ctx context.Context, q BookQuery) ([]models.Book, int64, error) {
	page, limit := normalizePage(q.Page, q.Limit)

	query := s.db.WithContext(ctx).Model(&models.Book{})
	if !q.IncludeInactive {
		query = query.Where("is_active = ?", true)
	}
	if q.Search != "" {
		pattern := "%" + strings.ToLower(q.Search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(genre) LIKE ?", pattern, pattern)
	}
	if q.Genre != "" {
		query = query.Where("genre = ?", q.Genre)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count books")
	}

	var books []models.Book
	err := query.Preload("Author").
		Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&books).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "find books")
	}
	return books, total, nil
}

// AdjustAvailableCopies applies delta to a book's available counter in a single
// guarded UPDATE. Decrements never go below zero, increments never exceed
// total_copies. It reports false when the guard rejected the change.
func (s *Store) AdjustAvailableCopies(ctx context.Context, bookID uint, delta int) (bool, error) {
	if delta == 0 {
		return true, nil
	}

	query := s.db.WithContext(ctx).Model(&models.Book{}).Where("id = ?", bookID)
	if delta < 0 {
		query = query.Where("available_copies >= ?", -delta)
	} else {
		query = query.Where("available_copies + ? <= total_copies", delta)
	}

	res := query.UpdateColumns(map[string]interface{}{
		"available_copies": gorm.Expr("available_copies + ?", delta),
		"updated_at":       time.Now().UTC(),
	})
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "adjust available copies of book %d", bookID)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) CreateBook(ctx context.Context, in BookInput, createdByID uint) (*models.Book, error) {
	if in.TotalCopies < 1 {
		return nil, apperror.InvalidInput("totalCopies must be at least 1")
	}
	author, err := s.FindAuthorByUid(ctx, in.AuthorUid)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return nil, apperror.InvalidInput("author not found")
		}
		return nil, err
	}
	if !author.IsActive {
		return nil, apperror.InvalidInput("author not found")
	}

	language := in.Language
	if language == "" {
		language = "Español"
	}

	book := models.Book{
		BookUid:         uuid.New().String(),
		Title:           strings.TrimSpace(in.Title),
		AuthorID:        author.ID,
		ISBN:            in.ISBN,
		Genre:           in.Genre,
		Publisher:       in.Publisher,
		Pages:           in.Pages,
		Language:        language,
		Description:     in.Description,
		TotalCopies:     in.TotalCopies,
		AvailableCopies: in.TotalCopies,
		IsActive:        true,
		CreatedByID:     createdByID,
	}
	if err := s.db.WithContext(ctx).Create(&book).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperror.Conflict(apperror.ReasonDuplicateField, "isbn already exists")
		}
		return nil, errors.Wrap(err, "create book")
	}
	book.Author = *author
	return &book, nil
}

// UpdateBook applies the patch in one transaction. A totalCopies change moves
// availableCopies by the same delta and is refused when copies on loan would
// leave the counter negative.
func (s *Store) UpdateBook(ctx context.Context, bookUid string, patch BookPatch) (*models.Book, error) {
	var updated *models.Book
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := s.WithTx(tx)
		book, err := store.FindBookByUid(ctx, bookUid)
		if err != nil {
			return err
		}

		fields := map[string]interface{}{}
		if patch.Title != nil {
			fields["title"] = strings.TrimSpace(*patch.Title)
		}
		if patch.ISBN != nil {
			fields["isbn"] = *patch.ISBN
		}
		if patch.Genre != nil {
			fields["genre"] = *patch.Genre
		}
		if patch.Publisher != nil {
			fields["publisher"] = *patch.Publisher
		}
		if patch.Pages != nil {
			fields["pages"] = *patch.Pages
		}
		if patch.Language != nil {
			fields["language"] = *patch.Language
		}
		if patch.Description != nil {
			fields["description"] = *patch.Description
		}
		if patch.AuthorUid != nil {
			author, err := store.FindAuthorByUid(ctx, *patch.AuthorUid)
			if err != nil {
				return err
			}
			fields["author_id"] = author.ID
		}

		if len(fields) > 0 {
			err := tx.Model(&models.Book{}).Where("id = ?", book.ID).Updates(fields).Error
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperror.Conflict(apperror.ReasonDuplicateField, "isbn already exists")
			}
			if err != nil {
				return errors.Wrap(err, "update book")
			}
		}

		if patch.TotalCopies != nil && *patch.TotalCopies != book.TotalCopies {
			total := *patch.TotalCopies
			if total < 1 {
				return apperror.InvalidInput("totalCopies must be at least 1")
			}
			res := tx.Model(&models.Book{}).
				Where("id = ? AND available_copies + (? - total_copies) >= 0", book.ID, total).
				UpdateColumns(map[string]interface{}{
					"total_copies":     total,
					"available_copies": gorm.Expr("available_copies + (? - total_copies)", total),
				})
			if res.Error != nil {
				return errors.Wrap(res.Error, "resize book copies")
			}
			if res.RowsAffected == 0 {
				return apperror.Conflict(apperror.ReasonCopiesOnLoan, "totalCopies is lower than the copies currently on loan")
			}
		}

		updated, err = store.FindBookByID(ctx, book.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeactivateBook is a soft delete; outstanding loans keep their reference.
func (s *Store) DeactivateBook(ctx context.Context, bookUid string) error {
	bookUid, err := apperror.CanonicalUid("book", bookUid)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&models.Book{}).Where("book_uid = ?", bookUid).Update("is_active", false)
	if res.Error != nil {
		return errors.Wrap(res.Error, "deactivate book")
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("book")
	}
	return nil
}

func (s *Store) Genres(ctx context.Context) ([]string, error) {
	var genres []string
	err := s.db.WithContext(ctx).Model(&models.Book{}).
		Where("is_active = ?", true).
		Distinct().Order("genre").Pluck("genre", &genres).Error
	if err != nil {
		return nil, errors.Wrap(err, "list genres")
	}
	return genres, nil
}

func (s *Store) PopularGenres(ctx context.Context, limit int) ([]GenreCount, error) {
	var counts []GenreCount
	err := s.db.WithContext(ctx).Model(&models.Book{}).
		Select("genre, COUNT(*) AS book_count").
		Where("is_active = ?", true).
		Group("genre").Order("book_count DESC").Order("genre").Limit(limit).
		Scan(&counts).Error
	if err != nil {
		return nil, errors.Wrap(err, "count genres")
	}
	return counts, nil
}

func (s *Store) LowStockBooks(ctx context.Context, threshold, limit int) ([]models.Book, error) {
	var books []models.Book
	err := s.db.WithContext(ctx).Preload("Author").
		Where("is_active = ? AND available_copies <= ?", true, threshold).
		Order("available_copies ASC").Order("title").Limit(limit).
		Find(&books).Error
	if err != nil {
		return nil, errors.Wrap(err, "find low stock books")
	}
	return books, nil
}

func (s *Store) Totals(ctx context.Context) (CopyTotals, error) {
	var totals CopyTotals
	err := s.db.WithContext(ctx).Model(&models.Book{}).
		Select("CAST(COALESCE(SUM(total_copies), 0) AS BIGINT) AS total_copies, " +
			"CAST(COALESCE(SUM(available_copies), 0) AS BIGINT) AS available_copies").
		Where("is_active = ?", true).
		Scan(&totals).Error
	if err != nil {
		return CopyTotals{}, errors.Wrap(err, "sum book copies")
	}
	return totals, nil
}

func (s *Store) CountBooks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Book{}).Where("is_active = ?", true).Count(&count).Error
	return count, errors.Wrap(err, "count books")
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	return page, limit
}
