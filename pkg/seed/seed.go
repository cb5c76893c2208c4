// Package seed loads demo data into an empty library.
package seed

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"library_backend/pkg/apperror"
	"library_backend/pkg/catalog"
	"library_backend/pkg/members"
	"library_backend/pkg/models"
)

const (
	AdminEmail    = "admin@library.local"
	AdminPassword = "admin123"
	MemberEmail   = "reader@library.local"
)

var demoAuthors = []catalog.AuthorInput{
	{Name: "Gabriel García Márquez", Biography: "Colombian novelist, Nobel laureate", Nationality: "Colombian"},
	{Name: "Isabel Allende", Biography: "Chilean novelist", Nationality: "Chilean"},
}

var demoBooks = []struct {
	author int
	book   catalog.BookInput
}{
	{0, catalog.BookInput{Title: "Cien años de soledad", ISBN: "9780307474728", Genre: "Magical realism", TotalCopies: 5}},
	{0, catalog.BookInput{Title: "El amor en los tiempos del cólera", ISBN: "9780307387264", Genre: "Novel", TotalCopies: 2}},
	{1, catalog.BookInput{Title: "La casa de los espíritus", ISBN: "9788401242144", Genre: "Novel", TotalCopies: 3}},
}

// Seed creates the demo accounts, authors and books that are missing. It is
// safe to run more than once.
func Seed(ctx context.Context, db *gorm.DB, people *members.Store, books *catalog.Store, logger *zap.Logger) error {
	admin, err := ensureMember(ctx, db, people, members.Registration{
		Name:     "Library Admin",
		Email:    AdminEmail,
		Password: AdminPassword,
		Role:     models.RoleAdmin,
	}, logger)
	if err != nil {
		return err
	}
	if _, err := ensureMember(ctx, db, people, members.Registration{
		Name:     "Demo Reader",
		Email:    MemberEmail,
		Password: "reader123",
	}, logger); err != nil {
		return err
	}

	authors := make([]*models.Author, len(demoAuthors))
	for i, in := range demoAuthors {
		var author models.Author
		err := db.WithContext(ctx).Where("name = ?", in.Name).First(&author).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			created, err := books.CreateAuthor(ctx, in, admin.ID)
			if err != nil {
				return err
			}
			logger.Info("seeded author", zap.String("name", in.Name))
			authors[i] = created
			continue
		}
		if err != nil {
			return errors.Wrap(err, "find seed author")
		}
		authors[i] = &author
	}

	for _, demo := range demoBooks {
		in := demo.book
		in.AuthorUid = authors[demo.author].AuthorUid
		_, err := books.CreateBook(ctx, in, admin.ID)
		if apperror.Is(err, apperror.KindConflict, apperror.ReasonDuplicateField) {
			continue
		}
		if err != nil {
			return err
		}
		logger.Info("seeded book", zap.String("title", in.Title))
	}

	logger.Info("library demo data seeded")
	return nil
}

func ensureMember(ctx context.Context, db *gorm.DB, people *members.Store, reg members.Registration, logger *zap.Logger) (*models.Member, error) {
	var existing models.Member
	err := db.WithContext(ctx).Where("email = ?", reg.Email).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(err, "find seed member")
	}
	member, err := people.Register(ctx, reg)
	if err != nil {
		return nil, err
	}
	logger.Info("seeded member", zap.String("email", reg.Email), zap.String("role", string(reg.Role)))
	return member, nil
}
