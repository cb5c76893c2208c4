package members

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"library_backend/pkg/apperror"
	"library_backend/pkg/models"
)

func (s *Store) CreateSession(ctx context.Context, member *models.Member) (*models.Session, error) {
	session := models.Session{
		Token:     uuid.New().String(),
		MemberID:  member.ID,
		ExpiresAt: s.now().Add(s.sessionTTL),
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, errors.Wrap(err, "create session")
	}
	session.Member = *member
	return &session, nil
}

// ResolveSession returns the member behind a live token.
func (s *Store) ResolveSession(ctx context.Context, token string) (*models.Member, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, apperror.Unauthorized("invalid or expired session")
	}
	var session models.Session
	err := s.db.WithContext(ctx).Preload("Member").
		Where("token = ? AND expires_at > ?", token, s.now()).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Unauthorized("invalid or expired session")
	}
	if err != nil {
		return nil, errors.Wrap(err, "resolve session")
	}
	if !session.Member.IsActive {
		return nil, apperror.Unauthorized("invalid or expired session")
	}
	return &session.Member, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	err := s.db.WithContext(ctx).Where("token = ?", token).Delete(&models.Session{}).Error
	return errors.Wrap(err, "delete session")
}

// PurgeExpiredSessions removes sessions past their expiry.
func (s *Store) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&models.Session{})
	return res.RowsAffected, errors.Wrap(res.Error, "purge sessions")
}
