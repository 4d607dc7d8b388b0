package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenKindAccess  = "access"
	tokenKindRefresh = "refresh"
)

var (
	errTokenExpired = errors.New("token expired")
	errTokenInvalid = errors.New("token invalid")
)

// Claims is the decoded identity carried by a verified token. Email is only
// present on access tokens; refresh tokens assert the user id alone.
type Claims struct {
	UserID string
	Email  string
}

// TokenManager issues and verifies the HS256-signed access and refresh
// tokens. Access tokens carry the email so the guard never has to hit the
// store; refresh tokens are additionally matched against the stored value,
// which is what makes them revocable.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	if accessTTL <= 0 {
		accessTTL = 24 * time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}

	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	m.now = now
	return m
}

func (m *TokenManager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

// IssuePair mints a fresh access/refresh token pair for the user.
func (m *TokenManager) IssuePair(userID, email string) (TokenPair, error) {
	access, err := m.IssueAccess(userID, email)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := m.IssueRefresh(userID)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// IssueAccess mints an access token asserting the user id and email.
func (m *TokenManager) IssueAccess(userID, email string) (string, error) {
	return m.issue(tokenKindAccess, userID, email, m.accessTTL)
}

// IssueRefresh mints a refresh token asserting the user id alone.
func (m *TokenManager) IssueRefresh(userID string) (string, error) {
	return m.issue(tokenKindRefresh, userID, "", m.refreshTTL)
}

func (m *TokenManager) issue(kind, userID, email string, ttl time.Duration) (string, error) {
	now := m.now().UTC()
	claims := jwt.MapClaims{
		"uid": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"typ": kind,
		// A unique id keeps two tokens minted within the same second from
		// being byte-identical, which rotation relies on.
		"jti": uuid.NewString(),
	}
	if email != "" {
		claims["email"] = email
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}

	return encoded, nil
}

// VerifyAccess validates an access token and returns its claims.
func (m *TokenManager) VerifyAccess(raw string) (Claims, error) {
	return m.verify(raw, tokenKindAccess)
}

// VerifyRefresh validates a refresh token's signature and expiry. The store
// match against the user's current refresh token happens in the service.
func (m *TokenManager) VerifyRefresh(raw string) (Claims, error) {
	return m.verify(raw, tokenKindRefresh)
}

func (m *TokenManager) verify(raw, kind string) (Claims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return m.now().UTC() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, errTokenExpired
		}
		return Claims{}, errTokenInvalid
	}
	if !token.Valid {
		return Claims{}, errTokenInvalid
	}

	if tokenKind, _ := claims["typ"].(string); tokenKind != kind {
		return Claims{}, errTokenInvalid
	}
	userID, _ := claims["uid"].(string)
	if userID == "" {
		return Claims{}, errTokenInvalid
	}
	email, _ := claims["email"].(string)

	return Claims{UserID: userID, Email: email}, nil
}
