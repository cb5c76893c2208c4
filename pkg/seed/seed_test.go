package seed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"library_backend/pkg/catalog"
	"library_backend/pkg/database/databasetest"
	"library_backend/pkg/members"
	"library_backend/pkg/models"
)

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := databasetest.New(t)
	people := members.NewStore(db, time.Hour)
	books := catalog.NewStore(db)

	require.NoError(t, Seed(ctx, db, people, books, zap.NewNop()))
	require.NoError(t, Seed(ctx, db, people, books, zap.NewNop()))

	var memberCount, authorCount, bookCount int64
	db.Model(&models.Member{}).Count(&memberCount)
	db.Model(&models.Author{}).Count(&authorCount)
	db.Model(&models.Book{}).Count(&bookCount)
	assert.Equal(t, int64(2), memberCount)
	assert.Equal(t, int64(len(demoAuthors)), authorCount)
	assert.Equal(t, int64(len(demoBooks)), bookCount)

	admin, err := people.Authenticate(ctx, AdminEmail, AdminPassword)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)
}
