package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/healthcare_records/internal/db/dbtest"
	"github.com/Skotchmaster/healthcare_records/internal/hash"
	"github.com/Skotchmaster/healthcare_records/internal/lockout"
	"github.com/Skotchmaster/healthcare_records/internal/models"
	"github.com/Skotchmaster/healthcare_records/internal/notify"
	"github.com/Skotchmaster/healthcare_records/internal/repo"
	"github.com/Skotchmaster/healthcare_records/internal/role"
	"github.com/Skotchmaster/healthcare_records/internal/store"
	"github.com/Skotchmaster/healthcare_records/internal/tokens"
)

func TestMain(m *testing.M) {
	hash.Cost = bcrypt.MinCost
	m.Run()
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type outbox struct {
	mu   sync.Mutex
	msgs []notify.Message
	fail bool
}

func (o *outbox) Send(_ context.Context, msg notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	if o.fail {
		return errors.New("smtp relay unavailable")
	}
	return nil
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}

var sixDigits = regexp.MustCompile(`\b\d{6}\b`)

// lastCode returns the code from the most recent message sent to email.
func (o *outbox) lastCode(t *testing.T, email string) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.msgs) - 1; i >= 0; i-- {
		if o.msgs[i].To == email {
			code := sixDigits.FindString(o.msgs[i].Body)
			require.NotEmpty(t, code)
			return code
		}
	}
	t.Fatalf("no message sent to %s", email)
	return ""
}

type harness struct {
	repo    *repo.GormRepo
	tokens  *tokens.Service
	auth    *AuthService
	admin   *AdminService
	records *RecordsService
	outbox  *outbox
	clock   *clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	r := repo.New(dbtest.Open(t))
	tk, err := tokens.NewService(tokens.Config{
		AccessSecret:  []byte("svc-access"),
		RefreshSecret: []byte("svc-refresh"),
		Issuer:        "healthcare-app",
		Audience:      "healthcare-client",
	}, r)
	require.NoError(t, err)

	clk := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	guard := lockout.New(store.NewMemory(store.WithClock(clk.Now)))
	out := &outbox{}

	rs := NewRecordsService(r)
	rs.now = clk.Now
	return &harness{
		repo:    r,
		tokens:  tk,
		auth:    NewAuthService(r, tk, guard, out, WithClock(clk.Now)),
		admin:   NewAdminService(r),
		records: rs,
		outbox:  out,
		clock:   clk,
	}
}

const testPassword = "CorrectHorse1"

func (h *harness) user(t *testing.T, name string, rl role.Role) *models.User {
	t.Helper()
	u, err := h.admin.CreateUser(context.Background(), CreateUserInput{
		Username: name,
		Email:    name + "@example.com",
		Password: testPassword,
		Role:     rl,
	})
	require.NoError(t, err)
	return u
}

// login runs both steps and returns the session.
func (h *harness) login(t *testing.T, email, password string) *Session {
	t.Helper()
	ctx := context.Background()
	_, err := h.auth.Login(ctx, email, password)
	require.NoError(t, err)
	s, err := h.auth.VerifyLoginOTP(ctx, VerifyInput{Email: email, Code: h.outbox.lastCode(t, email)})
	require.NoError(t, err)
	return s
}
