package tokens

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/healthcare_records/internal/apperr"
	"github.com/Skotchmaster/healthcare_records/internal/models"
	"github.com/Skotchmaster/healthcare_records/internal/role"
)

type memStore struct {
	mu   sync.Mutex
	recs map[string]models.RefreshToken
}

func newMemStore() *memStore { return &memStore{recs: map[string]models.RefreshToken{}} }

func (m *memStore) CreateRefresh(_ context.Context, rec *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[rec.TokenHash] = *rec
	return nil
}

func (m *memStore) RefreshActive(_ context.Context, h string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[h]
	return ok && rec.ExpiresAt > now.Unix(), nil
}

func (m *memStore) DeleteRefresh(_ context.Context, h string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, h)
	return nil
}

func (m *memStore) DeleteUserRefresh(_ context.Context, userID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, rec := range m.recs {
		if rec.UserID == userID {
			delete(m.recs, h)
		}
	}
	return nil
}

var testCfg = Config{
	AccessSecret:  []byte("test-access-secret"),
	RefreshSecret: []byte("test-refresh-secret"),
	Issuer:        "healthcare-app",
	Audience:      "healthcare-client",
	AccessTTL:     15 * time.Minute,
	RefreshTTL:    7 * 24 * time.Hour,
}

func newTestService(t *testing.T) (*Service, *memStore) {
	t.Helper()
	st := newMemStore()
	svc, err := NewService(testCfg, st)
	require.NoError(t, err)
	return svc, st
}

var doctor = Identity{ID: 7, Role: role.Doctor, Username: "dr_house"}

func TestNewService_RejectsBadSecrets(t *testing.T) {
	t.Parallel()

	_, err := NewService(Config{AccessSecret: []byte("a")}, newMemStore())
	require.Error(t, err)

	_, err = NewService(Config{AccessSecret: []byte("same"), RefreshSecret: []byte("same")}, newMemStore())
	require.Error(t, err)
}

func TestService_IssueAccess_Claims(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	tok, exp, err := svc.IssueAccess(doctor)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 2*time.Second)

	claims, err := svc.ParseAccess(tok)
	require.NoError(t, err)
	assert.Equal(t, role.Doctor, claims.Role)
	assert.Equal(t, "dr_house", claims.Username)
	assert.Equal(t, "7", claims.Subject)
	assert.Equal(t, "healthcare-app", claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"healthcare-client"}, claims.Audience)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint(7), id)
}

func TestService_IssueAccess_UnknownRole(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	_, _, err := svc.IssueAccess(Identity{ID: 1})
	require.ErrorIs(t, err, role.ErrUnknownRole)
}

func signWith(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestService_ParseAccess_Rejects(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	now := time.Now()
	base := func() AccessClaims {
		return AccessClaims{
			Role:     role.Admin,
			Username: "root",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "1",
				Issuer:    testCfg.Issuer,
				Audience:  jwt.ClaimStrings{testCfg.Audience},
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			},
		}
	}

	wrongIssuer := base()
	wrongIssuer.Issuer = "someone-else"
	wrongAudience := base()
	wrongAudience.Audience = jwt.ClaimStrings{"other-client"}
	expired := base()
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Second))
	noExpiry := base()
	noExpiry.ExpiresAt = nil
	badSubject := base()
	badSubject.Subject = "abc"

	tests := []struct {
		name string
		tok  string
	}{
		{name: "garbage", tok: "not-a-jwt"},
		{name: "hs384 substitution", tok: signWith(t, jwt.SigningMethodHS384, testCfg.AccessSecret, base())},
		{name: "alg none", tok: signWith(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, base())},
		{name: "refresh secret", tok: signWith(t, jwt.SigningMethodHS256, testCfg.RefreshSecret, base())},
		{name: "wrong issuer", tok: signWith(t, jwt.SigningMethodHS256, testCfg.AccessSecret, wrongIssuer)},
		{name: "wrong audience", tok: signWith(t, jwt.SigningMethodHS256, testCfg.AccessSecret, wrongAudience)},
		{name: "expired", tok: signWith(t, jwt.SigningMethodHS256, testCfg.AccessSecret, expired)},
		{name: "no expiry", tok: signWith(t, jwt.SigningMethodHS256, testCfg.AccessSecret, noExpiry)},
		{name: "bad subject", tok: signWith(t, jwt.SigningMethodHS256, testCfg.AccessSecret, badSubject)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			claims, err := svc.ParseAccess(tt.tok)
			require.ErrorIs(t, err, apperr.ErrTokenInvalid)
			assert.Nil(t, claims)
		})
	}
}

func TestService_ParseAccess_ExpiresWithClock(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	tok, _, err := svc.IssueAccess(doctor)
	require.NoError(t, err)

	svc.WithClock(func() time.Time { return time.Now().Add(16 * time.Minute) })
	_, err = svc.ParseAccess(tok)
	require.ErrorIs(t, err, apperr.ErrTokenInvalid)
}

func TestService_IssuePair_PersistsRecord(t *testing.T) {
	t.Parallel()

	svc, st := newTestService(t)
	ctx := context.Background()

	pair, err := svc.IssuePair(ctx, doctor)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	rec, ok := st.recs[HashToken(pair.RefreshToken)]
	require.True(t, ok)
	assert.Equal(t, doctor.ID, rec.UserID)
	assert.NotEmpty(t, rec.JTI)

	claims, err := svc.VerifyRefresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "7", claims.Subject)

	_, err = svc.ParseRefresh(pair.AccessToken)
	require.ErrorIs(t, err, apperr.ErrTokenInvalid)
}

func TestService_VerifyRefresh_RevokedRecord(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	pair, err := svc.IssuePair(ctx, doctor)
	require.NoError(t, err)
	other, err := svc.IssuePair(ctx, doctor)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, other.RefreshToken)

	require.NoError(t, svc.Revoke(ctx, pair.RefreshToken))

	_, err = svc.ParseRefresh(pair.RefreshToken)
	require.NoError(t, err, "signature still verifies")

	_, err = svc.VerifyRefresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, apperr.ErrRefreshRevoked)

	_, err = svc.VerifyRefresh(ctx, other.RefreshToken)
	require.NoError(t, err, "concurrent session unaffected")
}

func TestService_RevokeAll(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.IssuePair(ctx, doctor)
	require.NoError(t, err)
	b, err := svc.IssuePair(ctx, doctor)
	require.NoError(t, err)
	nurse, err := svc.IssuePair(ctx, Identity{ID: 9, Role: role.Nurse, Username: "n"})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAll(ctx, doctor.ID))

	for _, p := range []*Pair{a, b} {
		_, err := svc.VerifyRefresh(ctx, p.RefreshToken)
		require.ErrorIs(t, err, apperr.ErrRefreshRevoked)
	}
	_, err = svc.VerifyRefresh(ctx, nurse.RefreshToken)
	require.NoError(t, err)
}

func TestService_Revoke_EmptyIsNoop(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	require.NoError(t, svc.Revoke(context.Background(), ""))
}
