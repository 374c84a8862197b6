package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/opsdesk/internal/domain"
	apperrors "github.com/spec-kit/opsdesk/pkg/util/errorutil"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestLinkSignerRoundTrip(t *testing.T) {
	issued := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	signer := NewLinkSigner("s3cret", 0).WithClock(fixedClock(issued))

	token, ts := signer.Issue(17)
	assert.Equal(t, issued.Unix(), ts)
	assert.Len(t, token, 64)
	assert.NoError(t, signer.Verify(17, token, ts))
}

func TestLinkSignerAge(t *testing.T) {
	issued := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	token := NewLinkSigner("s3cret", 0).IssueAt(5, issued.Unix())

	cases := []struct {
		name string
		now  time.Time
		want error
	}{
		{name: "six days", now: issued.Add(6 * 24 * time.Hour)},
		{name: "exactly seven days", now: issued.Add(7 * 24 * time.Hour)},
		{name: "eight days", now: issued.Add(8 * 24 * time.Hour), want: apperrors.ErrTokenExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			signer := NewLinkSigner("s3cret", 0).WithClock(fixedClock(tc.now))
			err := signer.Verify(5, token, issued.Unix())
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLinkSignerRejectsTampering(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	signer := NewLinkSigner("s3cret", time.Hour).WithClock(fixedClock(now))
	token, ts := signer.Issue(5)

	assert.ErrorIs(t, signer.Verify(6, token, ts), apperrors.ErrTokenInvalid)
	assert.ErrorIs(t, signer.Verify(5, token, ts-1), apperrors.ErrTokenInvalid)
	assert.ErrorIs(t, signer.Verify(5, "not-hex", ts), apperrors.ErrTokenInvalid)

	other := NewLinkSigner("different", time.Hour).WithClock(fixedClock(now))
	assert.ErrorIs(t, other.Verify(5, token, ts), apperrors.ErrTokenInvalid)
}

func TestLinkSignerEmptySecretIsNotForgeable(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	signer := NewLinkSigner("", time.Hour).WithClock(fixedClock(now))
	token, ts := signer.Issue(5)
	require.NoError(t, signer.Verify(5, token, ts))

	mac := hmac.New(sha256.New, nil)
	mac.Write([]byte(fmt.Sprintf("5:%d", ts)))
	forged := hex.EncodeToString(mac.Sum(nil))
	assert.ErrorIs(t, signer.Verify(5, forged, ts), apperrors.ErrTokenInvalid)

	other := NewLinkSigner("", time.Hour).WithClock(fixedClock(now))
	assert.ErrorIs(t, other.Verify(5, token, ts), apperrors.ErrTokenInvalid)
}

func TestTokenManagerRoundTrip(t *testing.T) {
	tm := NewTokenManager("jwt-secret", 5)
	user := &domain.User{ID: 9, Username: "jdoe", Role: domain.UserRoleAdmin}

	token, expires, err := tm.GenerateToken(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expires, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(9), claims.UserID)
	assert.Equal(t, domain.UserRoleAdmin, claims.Role)

	_, err = NewTokenManager("other", 5).ParseToken(token)
	assert.Error(t, err)
}

func TestTokenManagerRejectsForeignTokens(t *testing.T) {
	tm := NewTokenManager("jwt-secret", 5)
	exp := jwt.NewNumericDate(time.Now().Add(time.Minute))

	cases := map[string]*jwt.Token{
		"wrong issuer": jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
			UserID:           1,
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "elsewhere", ExpiresAt: exp},
		}),
		"no expiry": jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
			UserID:           1,
			RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer},
		}),
		"other algorithm": jwt.NewWithClaims(jwt.SigningMethodHS512, &Claims{
			UserID:           1,
			RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer, ExpiresAt: exp},
		}),
		"missing user": jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer, ExpiresAt: exp},
		}),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			signed, err := token.SignedString([]byte("jwt-secret"))
			require.NoError(t, err)
			_, err = tm.ParseToken(signed)
			assert.Error(t, err)
		})
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2", 4)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "hunter2"))
	assert.Error(t, ComparePassword(hash, "hunter3"))
}

type stubUsers map[int64]*domain.User

func (s stubUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, apperrors.NewNotFound("user", nil)
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager("jwt-secret", 5)
	users := stubUsers{
		1: {ID: 1, Username: "admin", Role: domain.UserRoleAdmin, Active: true},
		2: {ID: 2, Username: "tech", Role: domain.UserRoleStaff, Active: true},
		3: {ID: 3, Username: "gone", Role: domain.UserRoleStaff, Active: false},
	}

	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		var de *apperrors.DomainError
		if errors.As(err, &de) {
			return c.SendStatus(de.HTTPStatus)
		}
		return c.SendStatus(http.StatusInternalServerError)
	}})
	mw := NewAuthMiddleware(tm, users)
	app.Get("/admin", mw.Handle, RequireRole(domain.UserRoleAdmin), func(c *fiber.Ctx) error {
		user, _ := UserFromContext(c)
		return c.SendString(user.Username)
	})

	tokenFor := func(id int64) string {
		tok, _, err := tm.GenerateToken(users[id])
		require.NoError(t, err)
		return "Bearer " + tok
	}

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"bad scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc", http.StatusUnauthorized},
		{"admin", tokenFor(1), http.StatusOK},
		{"staff lacks role", tokenFor(2), http.StatusForbidden},
		{"inactive", tokenFor(3), http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}
