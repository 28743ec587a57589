// Package auth issues and verifies access tokens.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cwrk-planet/room-chat/internal/domain"
)

const (
	DefaultCookieName = "access_token_cookie"
	queryParam        = "access_token"
)

// Claims is the payload of an access token.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret     string
	Issuer     string
	TTL        time.Duration
	CookieName string
}

// Provider signs HS256 tokens and resolves the caller of a request.
type Provider struct {
	secret []byte
	issuer string
	ttl    time.Duration
	cookie string
	now    func() time.Time
}

func NewProvider(cfg Config) (*Provider, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: empty secret")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	return &Provider{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		cookie: cfg.CookieName,
		now:    time.Now,
	}, nil
}

func (p *Provider) CookieName() string { return p.cookie }

func (p *Provider) TTL() time.Duration { return p.ttl }

// Issue returns a signed token for u and its expiry.
func (p *Provider) Issue(u *domain.User) (string, time.Time, error) {
	now := p.now()
	exp := now.Add(p.ttl)
	claims := &Claims{
		UserID:   string(u.ID),
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(u.ID),
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies raw and returns its claims. Every failure is ErrUnauthorized.
func (p *Provider) Parse(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}

// Resolve authenticates r from the token cookie, a Bearer header or the
// access_token query parameter, in that order.
func (p *Provider) Resolve(r *http.Request) (domain.UserID, error) {
	raw := p.tokenFrom(r)
	if raw == "" {
		return "", domain.ErrUnauthorized
	}
	claims, err := p.Parse(raw)
	if err != nil {
		return "", err
	}
	return domain.UserID(claims.UserID), nil
}

// Cookie builds the httponly cookie carrying token.
func (p *Provider) Cookie(token string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     p.cookie,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie expires the token cookie.
func (p *Provider) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     p.cookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (p *Provider) tokenFrom(r *http.Request) string {
	if c, err := r.Cookie(p.cookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	return r.URL.Query().Get(queryParam)
}
