package tokens

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Skotchmaster/healthcare_records/internal/apperr"
	"github.com/Skotchmaster/healthcare_records/internal/models"
	"github.com/Skotchmaster/healthcare_records/internal/role"
)

type AccessClaims struct {
	Role     role.Role `json:"role"`
	Username string    `json:"username"`
	jwt.RegisteredClaims
}

func (c *AccessClaims) UserID() (uint, error) {
	return parseSubject(c.Subject)
}

type RefreshClaims struct {
	jwt.RegisteredClaims
}

func (c *RefreshClaims) UserID() (uint, error) {
	return parseSubject(c.Subject)
}

// Identity is what an access token asserts about its bearer.
type Identity struct {
	ID       uint
	Role     role.Role
	Username string
}

// Store persists refresh token records. A refresh token is only honoured
// while its record exists and has not expired.
type Store interface {
	CreateRefresh(ctx context.Context, rec *models.RefreshToken) error
	RefreshActive(ctx context.Context, tokenHash string, now time.Time) (bool, error)
	DeleteRefresh(ctx context.Context, tokenHash string) error
	DeleteUserRefresh(ctx context.Context, userID uint) error
}

type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type Service struct {
	cfg   Config
	store Store
	now   func() time.Time
}

type Pair struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

func NewService(cfg Config, store Store) (*Service, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("tokens: access and refresh secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("tokens: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Service{cfg: cfg, store: store, now: time.Now}, nil
}

// WithClock replaces the wall clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) registered(sub string, exp time.Time) jwt.RegisteredClaims {
	now := s.now()
	return jwt.RegisteredClaims{
		Subject:   sub,
		Issuer:    s.cfg.Issuer,
		Audience:  jwt.ClaimStrings{s.cfg.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
}

func (s *Service) IssueAccess(id Identity) (string, time.Time, error) {
	if !id.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("tokens: %w", role.ErrUnknownRole)
	}
	exp := s.now().Add(s.cfg.AccessTTL)
	claims := AccessClaims{
		Role:             id.Role,
		Username:         id.Username,
		RegisteredClaims: s.registered(formatSubject(id.ID), exp),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.AccessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access: %w", err)
	}
	return tok, exp, nil
}

func (s *Service) issueRefresh(userID uint) (string, *RefreshClaims, error) {
	exp := s.now().Add(s.cfg.RefreshTTL)
	claims := RefreshClaims{RegisteredClaims: s.registered(formatSubject(userID), exp)}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.RefreshSecret)
	if err != nil {
		return "", nil, fmt.Errorf("sign refresh: %w", err)
	}
	return tok, &claims, nil
}

// IssuePair mints a fresh access and refresh token and persists the refresh
// record. Existing records for the identity are left alone.
func (s *Service) IssuePair(ctx context.Context, id Identity) (*Pair, error) {
	access, accessExp, err := s.IssueAccess(id)
	if err != nil {
		return nil, err
	}
	refresh, rc, err := s.issueRefresh(id.ID)
	if err != nil {
		return nil, err
	}

	rec := &models.RefreshToken{
		TokenHash: HashToken(refresh),
		JTI:       rc.ID,
		UserID:    id.ID,
		ExpiresAt: rc.ExpiresAt.Unix(),
	}
	if err := s.store.CreateRefresh(ctx, rec); err != nil {
		return nil, fmt.Errorf("save refresh: %w", err)
	}

	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		AccessExp:    accessExp,
		RefreshExp:   rc.ExpiresAt.Time,
	}, nil
}

func (s *Service) parserOptions() []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
}

func (s *Service) keyFunc(secret []byte) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}
}

// ParseAccess verifies signature, algorithm, issuer, audience and expiry.
// Every failure collapses into apperr.ErrTokenInvalid.
func (s *Service) ParseAccess(raw string) (*AccessClaims, error) {
	var claims AccessClaims
	tkn, err := jwt.ParseWithClaims(raw, &claims, s.keyFunc(s.cfg.AccessSecret), s.parserOptions()...)
	if err != nil || !tkn.Valid {
		return nil, apperr.Wrap(apperr.ErrTokenInvalid, err)
	}
	if !claims.Role.Valid() {
		return nil, apperr.ErrTokenInvalid
	}
	if _, err := claims.UserID(); err != nil {
		return nil, apperr.Wrap(apperr.ErrTokenInvalid, err)
	}
	return &claims, nil
}

func (s *Service) ParseRefresh(raw string) (*RefreshClaims, error) {
	var claims RefreshClaims
	tkn, err := jwt.ParseWithClaims(raw, &claims, s.keyFunc(s.cfg.RefreshSecret), s.parserOptions()...)
	if err != nil || !tkn.Valid {
		return nil, apperr.Wrap(apperr.ErrTokenInvalid, err)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, apperr.Wrap(apperr.ErrTokenInvalid, err)
	}
	return &claims, nil
}

// VerifyRefresh requires both a valid signature and a live record. A token
// whose record was deleted is ErrRefreshRevoked even if it still verifies.
func (s *Service) VerifyRefresh(ctx context.Context, raw string) (*RefreshClaims, error) {
	claims, err := s.ParseRefresh(raw)
	if err != nil {
		return nil, err
	}
	ok, err := s.store.RefreshActive(ctx, HashToken(raw), s.now())
	if err != nil {
		return nil, fmt.Errorf("lookup refresh: %w", err)
	}
	if !ok {
		return nil, apperr.ErrRefreshRevoked
	}
	return claims, nil
}

// Revoke deletes exactly the record for raw. Unknown tokens are a no-op.
func (s *Service) Revoke(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	return s.store.DeleteRefresh(ctx, HashToken(raw))
}

func (s *Service) RevokeAll(ctx context.Context, userID uint) error {
	return s.store.DeleteUserRefresh(ctx, userID)
}

func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func formatSubject(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func parseSubject(sub string) (uint, error) {
	n, err := strconv.ParseUint(sub, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid subject %q", sub)
	}
	return uint(n), nil
}
