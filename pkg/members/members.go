// Package members stores library members, their credentials and sessions.
package members

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"library_backend/pkg/apperror"
	"library_backend/pkg/models"
)

const minPasswordLength = 6

type Store struct {
	db         *gorm.DB
	sessionTTL time.Duration
	now        func() time.Time
}

func NewStore(db *gorm.DB, sessionTTL time.Duration) *Store {
	return &Store{db: db, sessionTTL: sessionTTL, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx, sessionTTL: s.sessionTTL, now: s.now}
}

type Registration struct {
	Name     string
	Email    string
	Password string
	Phone    string
	Address  string
	Role     models.Role
}

type MemberPatch struct {
	Name    *string
	Email   *string
	Phone   *string
	Address *string
	Role    *models.Role
}

func (s *Store) Register(ctx context.Context, in Registration) (*models.Member, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if strings.TrimSpace(in.Name) == "" || email == "" {
		return nil, apperror.InvalidInput("name and email are required")
	}
	if len(in.Password) < minPasswordLength {
		return nil, apperror.InvalidInput("password must be at least 6 characters")
	}
	role := in.Role
	if role == "" {
		role = models.RoleMember
	}
	if !role.Valid() {
		return nil, apperror.InvalidInput("unknown role")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	member := models.Member{
		MemberUid:    uuid.New().String(),
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: string(hash),
		Phone:        in.Phone,
		Address:      in.Address,
		Role:         role,
		IsActive:     true,
	}
	if err := s.db.WithContext(ctx).Create(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperror.Conflict(apperror.ReasonDuplicateField, "a member with this email already exists")
		}
		return nil, errors.Wrap(err, "create member")
	}
	return &member, nil
}

// Authenticate checks credentials. Unknown emails and wrong passwords fail the same way.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*models.Member, error) {
	var member models.Member
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Unauthorized("invalid credentials")
	}
	if err != nil {
		return nil, errors.Wrap(err, "find member by email")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(member.PasswordHash), []byte(password)); err != nil {
		return nil, apperror.Unauthorized("invalid credentials")
	}
	if !member.IsActive {
		return nil, apperror.Forbidden("account is disabled")
	}
	return &member, nil
}

func (s *Store) FindByUid(ctx context.Context, memberUid string) (*models.Member, error) {
	memberUid, err := apperror.CanonicalUid("member", memberUid)
	if err != nil {
		return nil, err
	}
	var member models.Member
	err = s.db.WithContext(ctx).Where("member_uid = ?", memberUid).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("member")
	}
	if err != nil {
		return nil, errors.Wrap(err, "find member")
	}
	return &member, nil
}

func (s *Store) FindByID(ctx context.Context, id uint) (*models.Member, error) {
	var member models.Member
	err := s.db.WithContext(ctx).First(&member, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("member")
	}
	if err != nil {
		return nil, errors.Wrap(err, "find member")
	}
	return &member, nil
}

func (s *Store) List(ctx context.Context) ([]models.Member, error) {
	var members []models.Member
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&members).Error; err != nil {
		return nil, errors.Wrap(err, "list members")
	}
	return members, nil
}

func (s *Store) Update(ctx context.Context, memberUid string, patch MemberPatch) (*models.Member, error) {
	member, err := s.FindByUid(ctx, memberUid)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if patch.Name != nil {
		fields["name"] = strings.TrimSpace(*patch.Name)
	}
	if patch.Email != nil {
		fields["email"] = strings.ToLower(strings.TrimSpace(*patch.Email))
	}
	if patch.Phone != nil {
		fields["phone"] = *patch.Phone
	}
	if patch.Address != nil {
		fields["address"] = *patch.Address
	}
	if patch.Role != nil {
		if !patch.Role.Valid() {
			return nil, apperror.InvalidInput("unknown role")
		}
		fields["role"] = *patch.Role
	}
	if len(fields) == 0 {
		return member, nil
	}

	err = s.db.WithContext(ctx).Model(member).Updates(fields).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, apperror.Conflict(apperror.ReasonDuplicateField, "a member with this email already exists")
	}
	if err != nil {
		return nil, errors.Wrap(err, "update member")
	}
	return s.FindByID(ctx, member.ID)
}

// ToggleActive flips the member's active flag and drops their sessions when disabled.
func (s *Store) ToggleActive(ctx context.Context, memberUid string) (*models.Member, error) {
	var toggled *models.Member
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := s.WithTx(tx)
		member, err := store.FindByUid(ctx, memberUid)
		if err != nil {
			return err
		}
		member.IsActive = !member.IsActive
		if err := tx.Model(member).Update("is_active", member.IsActive).Error; err != nil {
			return errors.Wrap(err, "toggle member")
		}
		if !member.IsActive {
			if err := tx.Where("member_id = ?", member.ID).Delete(&models.Session{}).Error; err != nil {
				return errors.Wrap(err, "drop member sessions")
			}
		}
		toggled = member
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toggled, nil
}

func (s *Store) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Member{}).Where("is_active = ?", true).Count(&count).Error
	return count, errors.Wrap(err, "count members")
}
