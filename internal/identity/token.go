package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const resetTokenIssuer = "postboard"

// resetTokenAudience はパスワードリセット用トークンであることを示す。
const resetTokenAudience = "password-reset"

// ResetTokens はパスワードリセット用の署名付きトークンを発行・検証する。
type ResetTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewResetTokens はResetTokensを生成する。secretは16文字以上が必要。
func NewResetTokens(secret string, ttl time.Duration) (*ResetTokens, error) {
	if len(secret) < 16 {
		return nil, errors.New("reset token secret must be at least 16 characters")
	}
	return &ResetTokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

type resetClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Issue はアカウントIDとメールアドレスを含むトークンを発行する。
func (t *ResetTokens) Issue(accountID, email string) (string, error) {
	now := t.now()
	c := resetClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    resetTokenIssuer,
			Audience:  jwt.ClaimStrings{resetTokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign reset token: %w", err)
	}
	return signed, nil
}

// Verify はトークンを検証し、アカウントIDとメールアドレスを返す。
func (t *ResetTokens) Verify(token string) (accountID, email string, err error) {
	parsed, err := jwt.ParseWithClaims(token, &resetClaims{},
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(resetTokenIssuer),
		jwt.WithAudience(resetTokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return "", "", fmt.Errorf("invalid reset token: %w", err)
	}
	c, ok := parsed.Claims.(*resetClaims)
	if !ok || c.Subject == "" {
		return "", "", errors.New("invalid reset token claims")
	}
	return c.Subject, c.Email, nil
}
