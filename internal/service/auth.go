package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Skotchmaster/healthcare_records/internal/apperr"
	"github.com/Skotchmaster/healthcare_records/internal/hash"
	"github.com/Skotchmaster/healthcare_records/internal/lockout"
	"github.com/Skotchmaster/healthcare_records/internal/logging"
	"github.com/Skotchmaster/healthcare_records/internal/models"
	"github.com/Skotchmaster/healthcare_records/internal/notify"
	"github.com/Skotchmaster/healthcare_records/internal/repo"
	"github.com/Skotchmaster/healthcare_records/internal/role"
	"github.com/Skotchmaster/healthcare_records/internal/tokens"
	"github.com/Skotchmaster/healthcare_records/internal/twofactor"
)

type AuthService struct {
	repo     *repo.GormRepo
	tokens   *tokens.Service
	lockout  *lockout.Guard
	notifier notify.Notifier

	loginTTL time.Duration
	resetTTL time.Duration
	now      func() time.Time
}

type AuthOption func(*AuthService)

func WithOTPLifetimes(login, reset time.Duration) AuthOption {
	return func(s *AuthService) {
		if login > 0 {
			s.loginTTL = login
		}
		if reset > 0 {
			s.resetTTL = reset
		}
	}
}

func WithClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

func NewAuthService(r *repo.GormRepo, tk *tokens.Service, lg *lockout.Guard, n notify.Notifier, opts ...AuthOption) *AuthService {
	s := &AuthService{
		repo:     r,
		tokens:   tk,
		lockout:  lg,
		notifier: n,
		loginTTL: 10 * time.Minute,
		resetTTL: 15 * time.Minute,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type SignupInput struct {
	Username string
	Email    string
	Password string
	Name     string
	Age      int
}

// Challenge is what a correct password earns: a pending OTP, never tokens.
type Challenge struct {
	Email             string    `json:"email"`
	ExpiresAt         time.Time `json:"expiresAt"`
	TwoFactorRequired bool      `json:"twoFactorRequired"`
}

type VerifyInput struct {
	Email    string
	Code     string
	TOTPCode string
}

type Session struct {
	*tokens.Pair
	User *models.User
}

// Signup registers a patient together with their profile. No other role can
// be self-registered.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.signup")

	in.Username = strings.TrimSpace(in.Username)
	in.Email = NormalizeEmail(in.Email)
	if err := validateUsername(in.Username); err != nil {
		return nil, err
	}
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	digest, err := hash.HashPassword(in.Password)
	if err != nil {
		l.Error("signup_failed", "reason", "hash", "error", err)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = in.Username
	}
	u := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: digest,
		Role:         role.Patient,
	}
	if err := s.repo.CreateUser(ctx, u, &models.Patient{Name: name, Age: in.Age}); err != nil {
		if errors.Is(err, apperr.ErrDuplicateIdentity) {
			l.Warn("signup_failed", "reason", "duplicate")
			return nil, apperr.ErrDuplicateIdentity
		}
		l.Error("signup_failed", "error", err)
		return nil, err
	}
	l.Info("signup", "user_id", u.ID)
	return u, nil
}

// Login checks credentials and, on success, issues a login OTP. Unknown
// identities and wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Challenge, error) {
	email = NormalizeEmail(email)
	key := lockout.EmailKey(email)
	l := logging.FromContext(ctx).With("svc", "auth.login")

	if err := s.checkLock(ctx, key); err != nil {
		l.Warn("login_failed", "reason", "locked")
		return nil, err
	}

	u, err := s.repo.UserByEmail(ctx, email)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		hash.Burn(password)
		l.Warn("login_failed", "reason", "unknown identity")
		return nil, s.fail(ctx, key, apperr.ErrInvalidCredentials)
	case err != nil:
		l.Error("login_failed", "error", err)
		return nil, err
	}

	if !hash.CheckPassword(u.PasswordHash, password) {
		l.Warn("login_failed", "reason", "bad password", "user_id", u.ID)
		return nil, s.fail(ctx, key, apperr.ErrInvalidCredentials)
	}

	if !hash.IsDigest(u.PasswordHash) {
		s.upgradeLegacyPassword(ctx, u, password)
	}

	exp, err := s.issueCode(ctx, u, models.PurposeLogin, s.loginTTL)
	if err != nil {
		l.Error("login_failed", "reason", "issue otp", "error", err)
		return nil, err
	}
	l.Info("otp_issued", "user_id", u.ID)
	return &Challenge{Email: email, ExpiresAt: exp, TwoFactorRequired: u.TwoFactorEnabled}, nil
}

func (s *AuthService) upgradeLegacyPassword(ctx context.Context, u *models.User, password string) {
	l := logging.FromContext(ctx)
	digest, err := hash.HashPassword(password)
	if err == nil {
		err = s.repo.UpdatePassword(ctx, u.ID, digest)
	}
	if err != nil {
		l.Error("legacy_password_upgrade_failed", "user_id", u.ID, "error", err)
		return
	}
	l.Info("legacy_password_upgraded", "user_id", u.ID)
}

// VerifyLoginOTP completes a login. When the identity has an authenticator app
// enrolled its code is checked before the emailed code is consumed.
func (s *AuthService) VerifyLoginOTP(ctx context.Context, in VerifyInput) (*Session, error) {
	email := NormalizeEmail(in.Email)
	key := lockout.EmailKey(email)
	l := logging.FromContext(ctx).With("svc", "auth.verify_otp")

	if err := s.checkLock(ctx, key); err != nil {
		return nil, err
	}

	u, err := s.repo.UserByEmail(ctx, email)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		l.Warn("otp_failed", "reason", "unknown identity")
		return nil, s.fail(ctx, key, apperr.ErrOTPInvalid)
	case err != nil:
		return nil, err
	}

	if u.TwoFactorEnabled && !twofactor.ValidateAt(in.TOTPCode, u.TwoFactorSecret, s.now()) {
		l.Warn("otp_failed", "reason", "totp", "user_id", u.ID)
		return nil, s.fail(ctx, key, apperr.ErrOTPInvalid)
	}

	ok, err := s.repo.ConsumeCode(ctx, u.ID, email, models.PurposeLogin, hashCode(strings.TrimSpace(in.Code)), s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		l.Warn("otp_failed", "reason", "code", "user_id", u.ID)
		return nil, s.fail(ctx, key, apperr.ErrOTPInvalid)
	}

	if err := s.lockout.Reset(ctx, key); err != nil {
		l.Error("lockout_reset_failed", "error", err)
	}

	pair, err := s.tokens.IssuePair(ctx, tokens.Identity{ID: u.ID, Role: u.Role, Username: u.Username})
	if err != nil {
		l.Error("token_issue_failed", "user_id", u.ID, "error", err)
		return nil, err
	}
	l.Info("login", "user_id", u.ID, "role", u.Role.String())
	return &Session{Pair: pair, User: u}, nil
}

// Refresh trades a live refresh token for a new access token. The refresh
// token itself is not rotated. Role and username are re-read so a changed
// role takes effect on the next renewal.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := s.tokens.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		logging.FromContext(ctx).Warn("refresh_failed", "kind", apperr.KindOf(err))
		return "", time.Time{}, err
	}
	id, err := claims.UserID()
	if err != nil {
		return "", time.Time{}, apperr.ErrTokenInvalid
	}
	u, err := s.repo.UserByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", time.Time{}, apperr.ErrRefreshRevoked
	}
	if err != nil {
		return "", time.Time{}, err
	}
	return s.tokens.IssueAccess(tokens.Identity{ID: u.ID, Role: u.Role, Username: u.Username})
}

// Logout revokes exactly the presented refresh token.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.tokens.Revoke(ctx, refreshToken); err != nil {
		logging.FromContext(ctx).Error("logout_failed", "error", err)
		return err
	}
	return nil
}

// ForgotPassword issues a reset code when the identity exists. The result is
// the same either way.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) {
	email = NormalizeEmail(email)
	l := logging.FromContext(ctx).With("svc", "auth.forgot_password")

	u, err := s.repo.UserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			l.Error("reset_issue_failed", "error", err)
		}
		return
	}
	if _, err := s.issueCode(ctx, u, models.PurposeReset, s.resetTTL); err != nil {
		l.Error("reset_issue_failed", "user_id", u.ID, "error", err)
		return
	}
	l.Info("reset_code_issued", "user_id", u.ID)
}

func resetKey(email string) string { return "reset:" + lockout.EmailKey(email) }

// ResetPassword consumes a reset code, replaces the digest and ends every
// session of the identity.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = NormalizeEmail(email)
	key := resetKey(email)
	l := logging.FromContext(ctx).With("svc", "auth.reset_password")

	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if err := s.checkLock(ctx, key); err != nil {
		return err
	}

	u, err := s.repo.UserByEmail(ctx, email)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return s.fail(ctx, key, apperr.ErrOTPInvalid)
	case err != nil:
		return err
	}

	// Hash first so that a failure here leaves the code unspent.
	digest, err := hash.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	ok, err := s.repo.ConsumeCode(ctx, u.ID, email, models.PurposeReset, hashCode(strings.TrimSpace(code)), s.now())
	if err != nil {
		return err
	}
	if !ok {
		l.Warn("reset_failed", "reason", "code", "user_id", u.ID)
		return s.fail(ctx, key, apperr.ErrOTPInvalid)
	}

	if err := s.storePassword(ctx, u.ID, digest); err != nil {
		return err
	}
	if err := s.lockout.Reset(ctx, key); err != nil {
		l.Error("lockout_reset_failed", "error", err)
	}
	if err := s.lockout.Reset(ctx, lockout.EmailKey(email)); err != nil {
		l.Error("lockout_reset_failed", "error", err)
	}
	l.Info("password_reset", "user_id", u.ID)
	return nil
}

// ChangePassword requires the current password and ends every session.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, current, next string) error {
	u, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !hash.CheckPassword(u.PasswordHash, current) {
		logging.FromContext(ctx).Warn("change_password_failed", "reason", "bad password", "user_id", userID)
		return apperr.ErrInvalidCredentials
	}
	if err := validatePassword(next); err != nil {
		return err
	}
	if err := s.setPassword(ctx, userID, next); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("password_changed", "user_id", userID)
	return nil
}

func (s *AuthService) setPassword(ctx context.Context, userID uint, password string) error {
	digest, err := hash.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.storePassword(ctx, userID, digest)
}

// storePassword writes digest and revokes every refresh token of the identity.
func (s *AuthService) storePassword(ctx context.Context, userID uint, digest string) error {
	if err := s.repo.UpdatePassword(ctx, userID, digest); err != nil {
		return err
	}
	if err := s.tokens.RevokeAll(ctx, userID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

func (s *AuthService) Me(ctx context.Context, userID uint) (*models.User, error) {
	return s.repo.UserByID(ctx, userID)
}

func (s *AuthService) GenerateTwoFactor(ctx context.Context, userID uint) (*twofactor.Enrolment, error) {
	u, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.TwoFactorEnabled {
		return nil, apperr.Validation("two-factor authentication is already enabled")
	}
	en, err := twofactor.Generate(u.Email)
	if err != nil {
		return nil, fmt.Errorf("generate totp: %w", err)
	}
	if err := s.repo.SetTwoFactor(ctx, userID, en.Secret, false); err != nil {
		return nil, err
	}
	return en, nil
}

func (s *AuthService) EnableTwoFactor(ctx context.Context, userID uint, code string) error {
	u, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.TwoFactorEnabled {
		return apperr.Validation("two-factor authentication is already enabled")
	}
	if u.TwoFactorSecret == "" {
		return apperr.Validation("generate a two-factor secret first")
	}
	if !twofactor.ValidateAt(code, u.TwoFactorSecret, s.now()) {
		return apperr.ErrOTPInvalid
	}
	if err := s.repo.SetTwoFactor(ctx, userID, u.TwoFactorSecret, true); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("two_factor_enabled", "user_id", userID)
	return nil
}

func (s *AuthService) DisableTwoFactor(ctx context.Context, userID uint, code string) error {
	u, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.TwoFactorEnabled {
		return apperr.Validation("two-factor authentication is not enabled")
	}
	if !twofactor.ValidateAt(code, u.TwoFactorSecret, s.now()) {
		return apperr.ErrOTPInvalid
	}
	if err := s.repo.SetTwoFactor(ctx, userID, "", false); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("two_factor_disabled", "user_id", userID)
	return nil
}

func (s *AuthService) checkLock(ctx context.Context, key string) error {
	st, err := s.lockout.Check(ctx, key)
	if err != nil {
		return err
	}
	if st.Locked {
		return apperr.Locked(st.RetryAfter)
	}
	return nil
}

// fail counts a failed attempt. The attempt that trips the lock is reported
// as a lockout rather than as base.
func (s *AuthService) fail(ctx context.Context, key string, base error) error {
	st, err := s.lockout.RecordFailure(ctx, key)
	if err != nil {
		logging.FromContext(ctx).Error("lockout_record_failed", "error", err)
		return base
	}
	if st.Locked {
		logging.FromContext(ctx).Warn("account_locked", "retry_after", st.RetryAfter.String())
		return apperr.Locked(st.RetryAfter)
	}
	return base
}

// issueCode replaces any unused code of the purpose and sends the new one.
// Delivery failures are logged; the code is already stored and the user can
// ask for another.
func (s *AuthService) issueCode(ctx context.Context, u *models.User, purpose models.Purpose, ttl time.Duration) (time.Time, error) {
	code, err := newCode()
	if err != nil {
		return time.Time{}, fmt.Errorf("generate code: %w", err)
	}
	exp := s.now().Add(ttl)
	rec := &models.OneTimeCode{
		UserID:    u.ID,
		Email:     u.Email,
		Purpose:   purpose,
		CodeHash:  hashCode(code),
		ExpiresAt: exp.Unix(),
	}
	if err := s.repo.ReplaceCode(ctx, rec); err != nil {
		return time.Time{}, fmt.Errorf("store code: %w", err)
	}

	msg := notify.LoginOTP(u.Email, code, ttl)
	if purpose == models.PurposeReset {
		msg = notify.ResetOTP(u.Email, code, ttl)
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		logging.FromContext(ctx).Error("otp_delivery_failed", "user_id", u.ID, "kind", msg.Kind, "error", err)
	}
	return exp, nil
}
