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

type AuthorInput struct {
	Name        string
	Biography   string
	BirthDate   *time.Time
	Nationality string
	Website     string
}

type AuthorPatch struct {
	Name        *string
	Biography   *string
	BirthDate   *time.Time
	Nationality *string
	Website     *string
}

func (s *Store) CreateAuthor(ctx context.Context, in AuthorInput, createdByID uint) (*models.Author, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperror.InvalidInput("author name is required")
	}
	author := models.Author{
		AuthorUid:   uuid.New().String(),
		Name:        name,
		Biography:   in.Biography,
		BirthDate:   in.BirthDate,
		Nationality: in.Nationality,
		Website:     in.Website,
		IsActive:    true,
		CreatedByID: createdByID,
	}
	if err := s.db.WithContext(ctx).Create(&author).Error; err != nil {
		return nil, errors.Wrap(err, "create author")
	}
	return &author, nil
}

func (s *Store) FindAuthorByUid(ctx context.Context, authorUid string) (*models.Author, error) {
	authorUid, err := apperror.CanonicalUid("author", authorUid)
	if err != nil {
		return nil, err
	}
	var author models.Author
	err = s.db.WithContext(ctx).Where("author_uid = ?", authorUid).First(&author).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("author")
	}
	if err != nil {
		return nil, errors.Wrap(err, "find author")
	}
	return &author, nil
}

func (s *Store) FindAuthors(ctx context.Context, page, limit int) ([]models.Author, int64, error) {
	page, limit = normalizePage(page, limit)
	query := s.db.WithContext(ctx).Model(&models.Author{}).Where("is_active = ?", true).Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count authors")
	}
	var authors []models.Author
	err := query.Order("name").Offset((page - 1) * limit).Limit(limit).Find(&authors).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "find authors")
	}
	return authors, total, nil
}

// BooksByAuthor lists the active books written by an author.
func (s *Store) BooksByAuthor(ctx context.Context, authorID uint) ([]models.Book, error) {
	var books []models.Book
	err := s.db.WithContext(ctx).Where("author_id = ? AND is_active = ?", authorID, true).Order("title").Find(&books).Error
	if err != nil {
		return nil, errors.Wrap(err, "find author books")
	}
	return books, nil
}

func (s *Store) UpdateAuthor(ctx context.Context, authorUid string, patch AuthorPatch) (*models.Author, error) {
	author, err := s.FindAuthorByUid(ctx, authorUid)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperror.InvalidInput("author name is required")
		}
		fields["name"] = name
	}
	if patch.Biography != nil {
		fields["biography"] = *patch.Biography
	}
	if patch.BirthDate != nil {
		fields["birth_date"] = *patch.BirthDate
	}
	if patch.Nationality != nil {
		fields["nationality"] = *patch.Nationality
	}
	if patch.Website != nil {
		fields["website"] = *patch.Website
	}
	if len(fields) == 0 {
		return author, nil
	}

	if err := s.db.WithContext(ctx).Model(author).Updates(fields).Error; err != nil {
		return nil, errors.Wrap(err, "update author")
	}
	return s.FindAuthorByUid(ctx, authorUid)
}

func (s *Store) DeactivateAuthor(ctx context.Context, authorUid string) error {
	authorUid, err := apperror.CanonicalUid("author", authorUid)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&models.Author{}).Where("author_uid = ?", authorUid).Update("is_active", false)
	if res.Error != nil {
		return errors.Wrap(res.Error, "deactivate author")
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("author")
	}
	return nil
}

func (s *Store) CountAuthors(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Author{}).Where("is_active = ?", true).Count(&count).Error
	return count, errors.Wrap(err, "count authors")
}
