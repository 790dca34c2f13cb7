// Package csrf issues per-client secrets and verifies tokens derived from
// them. Only the secret is stored; any number of tokens minted from it verify.
package csrf

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/healthcare_records/internal/apperr"
	"github.com/Skotchmaster/healthcare_records/internal/logging"
	"github.com/Skotchmaster/healthcare_records/internal/middleware/auth"
	"github.com/Skotchmaster/healthcare_records/internal/store"
)

type Config struct {
	CookieName string
	HeaderName string
	AltHeader  string
	FormField  string

	CookiePath string
	Domain     string
	Secure     bool
	SameSite   http.SameSite
	MaxAge     time.Duration

	// SecretTTL bounds how long an idle client secret is kept.
	SecretTTL time.Duration

	SkipPaths []string
}

func DefaultConfig() Config {
	return Config{
		CookieName: "XSRF-TOKEN",
		HeaderName: "X-CSRF-Token",
		AltHeader:  "X-XSRF-Token",
		FormField:  "_csrf",
		CookiePath: "/",
		SameSite:   http.SameSiteStrictMode,
		MaxAge:     time.Hour,
		SecretTTL:  24 * time.Hour,
	}
}

func (cfg *Config) fill() {
	def := DefaultConfig()
	if cfg.CookieName == "" {
		cfg.CookieName = def.CookieName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = def.HeaderName
	}
	if cfg.AltHeader == "" {
		cfg.AltHeader = def.AltHeader
	}
	if cfg.FormField == "" {
		cfg.FormField = def.FormField
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = def.CookiePath
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = def.SameSite
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = def.MaxAge
	}
	if cfg.SecretTTL == 0 {
		cfg.SecretTTL = def.SecretTTL
	}
}

type Guard struct {
	cfg      Config
	store    store.Store
	verifier auth.Verifier
}

// NewGuard builds a guard. verifier may be nil, in which case bearer tokens
// never waive the check.
func NewGuard(cfg Config, st store.Store, verifier auth.Verifier) *Guard {
	cfg.fill()
	return &Guard{cfg: cfg, store: st, verifier: verifier}
}

func secretKey(client string) string { return "csrf:" + client }

func (g *Guard) ensureSecret(ctx context.Context, client string) (string, error) {
	v, _, ok, err := g.store.Get(ctx, secretKey(client))
	if err != nil {
		return "", err
	}
	if ok {
		return v, nil
	}
	s, err := randomString(18)
	if err != nil {
		return "", err
	}
	created, err := g.store.SetNX(ctx, secretKey(client), s, g.cfg.SecretTTL)
	if err != nil {
		return "", err
	}
	if created {
		return s, nil
	}
	v, _, _, err = g.store.Get(ctx, secretKey(client))
	return v, err
}

// Issue hands the caller a fresh token for its client secret.
func (g *Guard) Issue(c echo.Context) error {
	ctx := c.Request().Context()
	secret, err := g.ensureSecret(ctx, c.RealIP())
	if err != nil {
		logging.FromContext(ctx).Error("csrf_issue_failed", "error", err)
		return err
	}
	token, err := Mint(secret)
	if err != nil {
		return err
	}

	c.Response().Header().Set(g.cfg.HeaderName, token)
	c.SetCookie(&http.Cookie{
		Name:     g.cfg.CookieName,
		Value:    token,
		Path:     g.cfg.CookiePath,
		Domain:   g.cfg.Domain,
		Secure:   g.cfg.Secure,
		HttpOnly: false,
		MaxAge:   int(g.cfg.MaxAge.Seconds()),
		SameSite: g.cfg.SameSite,
	})
	return c.JSON(http.StatusOK, echo.Map{"csrfToken": token})
}

type MiddlewareConfig struct {
	// Optional lets requests without a secret or token through; a token that
	// is present but wrong is still rejected.
	Optional  bool
	SkipPaths []string
}

func (g *Guard) Middleware(mc MiddlewareConfig) echo.MiddlewareFunc {
	skip := map[string]struct{}{}
	for _, p := range append(append([]string{}, g.cfg.SkipPaths...), mc.SkipPaths...) {
		skip[p] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := req.Context()
			l := logging.FromContext(ctx)

			if _, ok := skip[req.URL.Path]; ok {
				return next(c)
			}
			switch req.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}
			if g.bearerValid(req) {
				return next(c)
			}

			secret, _, haveSecret, err := g.store.Get(ctx, secretKey(c.RealIP()))
			if err != nil {
				l.Error("csrf_lookup_failed", "error", err)
				return err
			}
			provided := g.submitted(c)

			if mc.Optional && provided == "" {
				return next(c)
			}
			if !haveSecret {
				l.Warn("csrf_rejected", "reason", "no secret for client")
				return apperr.ErrCSRF
			}
			if !Verify(secret, provided) {
				l.Warn("csrf_rejected", "reason", "token mismatch")
				return apperr.ErrCSRF
			}
			return next(c)
		}
	}
}

func (g *Guard) bearerValid(req *http.Request) bool {
	if g.verifier == nil {
		return false
	}
	raw := auth.BearerToken(req)
	if raw == "" {
		return false
	}
	_, err := g.verifier.ParseAccess(raw)
	return err == nil
}

// submitted looks in the headers, then the JSON or form body, then the query.
func (g *Guard) submitted(c echo.Context) string {
	req := c.Request()
	if v := req.Header.Get(g.cfg.HeaderName); v != "" {
		return v
	}
	if v := req.Header.Get(g.cfg.AltHeader); v != "" {
		return v
	}

	ct := req.Header.Get(echo.HeaderContentType)
	switch {
	case strings.HasPrefix(ct, echo.MIMEApplicationJSON):
		if v := g.jsonField(req); v != "" {
			return v
		}
	case strings.HasPrefix(ct, echo.MIMEApplicationForm), strings.HasPrefix(ct, echo.MIMEMultipartForm):
		if v := req.FormValue(g.cfg.FormField); v != "" {
			return v
		}
	}
	return c.QueryParam(g.cfg.FormField)
}

// jsonField reads the body and puts it back for the handler.
func (g *Guard) jsonField(req *http.Request) string {
	if req.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil || len(body) == 0 {
		return ""
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return ""
	}
	var s string
	if raw, ok := m[g.cfg.FormField]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

// Mint derives a token as salt "-" base64url(HMAC-SHA256(secret, salt)).
func Mint(secret string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	salt := hex.EncodeToString(b)
	return salt + "-" + sign(secret, salt), nil
}

func Verify(secret, token string) bool {
	if secret == "" || token == "" {
		return false
	}
	i := strings.IndexByte(token, '-')
	if i <= 0 {
		return false
	}
	salt, mac := token[:i], token[i+1:]
	return hmac.Equal([]byte(mac), []byte(sign(secret, salt)))
}

func sign(secret, salt string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(salt))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
