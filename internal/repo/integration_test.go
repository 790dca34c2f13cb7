package repo

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/healthcare_records/internal/apperr"
	"github.com/Skotchmaster/healthcare_records/internal/db"
	"github.com/Skotchmaster/healthcare_records/internal/db/dbtest"
	"github.com/Skotchmaster/healthcare_records/internal/fieldcrypt"
	"github.com/Skotchmaster/healthcare_records/internal/models"
	"github.com/Skotchmaster/healthcare_records/internal/role"
)

// newPostgresRepo runs against a real database so that concurrent statements
// actually race. Tables are shared, so every test uses unique identities.
func newPostgresRepo(t *testing.T) *GormRepo {
	t.Helper()

	dsn := os.Getenv("HEALTHCARE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("HEALTHCARE_TEST_DATABASE_URL is required for integration tests")
	}
	c, err := fieldcrypt.New(dbtest.Key)
	require.NoError(t, err)

	gdb, err := db.Open(context.Background(), dsn, models.Encrypted(fieldcrypt.NewPlugin(c)))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return New(gdb)
}

func uniqueName() string {
	return "u_" + uuid.NewString()[:8]
}

func TestIntegration_DuplicateIdentity(t *testing.T) {
	r := newPostgresRepo(t)
	ctx := context.Background()
	name := uniqueName()

	u := &models.User{Username: name, Email: name + "@example.com", PasswordHash: "x", Role: role.Patient}
	require.NoError(t, r.CreateUser(ctx, u, &models.Patient{Name: name}))
	t.Cleanup(func() { _ = r.DeleteUser(ctx, u.ID) })

	dup := &models.User{Username: name, Email: uniqueName() + "@example.com", PasswordHash: "x", Role: role.Nurse}
	require.ErrorIs(t, r.CreateUser(ctx, dup, nil), apperr.ErrDuplicateIdentity)
}

func TestIntegration_ConsumeCodeOnce(t *testing.T) {
	r := newPostgresRepo(t)
	ctx := context.Background()
	name := uniqueName()

	u := &models.User{Username: name, Email: name + "@example.com", PasswordHash: "x", Role: role.Doctor}
	require.NoError(t, r.CreateUser(ctx, u, nil))
	t.Cleanup(func() { _ = r.DeleteUser(ctx, u.ID) })

	now := time.Now()
	require.NoError(t, r.ReplaceCode(ctx, &models.OneTimeCode{
		UserID: u.ID, Email: u.Email, Purpose: models.PurposeLogin,
		CodeHash: "h", ExpiresAt: now.Add(time.Minute).Unix(),
	}))

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := r.ConsumeCode(ctx, u.ID, u.Email, models.PurposeLogin, "h", now)
			if assert.NoError(t, err) && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
