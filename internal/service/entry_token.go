package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/vogiaan1904/ticketbottle-admission/config"
)

// EntryTokenIssuer signs short-lived capability tokens proving a user was
// admitted for an event. Issue-only: verification belongs to the gateway and
// the booking pipeline downstream.
type EntryTokenIssuer interface {
	Generate(eventID, userID string) (string, error)
}

type jwtEntryTokenIssuer struct {
	secret []byte
	expiry time.Duration
	clock  clockwork.Clock
}

// NewEntryTokenIssuer fails fast on missing signing material so the service
// refuses to start rather than silently issuing unverifiable tokens.
func NewEntryTokenIssuer(cfg config.JWTConfig, clock clockwork.Clock) (EntryTokenIssuer, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingJWTSecret
	}

	return &jwtEntryTokenIssuer{
		secret: []byte(cfg.Secret),
		expiry: cfg.Expiry,
		clock:  clock,
	}, nil
}

func (i *jwtEntryTokenIssuer) Generate(eventID, userID string) (string, error) {
	now := i.clock.Now()

	claims := jwt.MapClaims{
		"sub":     eventID,
		"user_id": userID,
		"iat":     now.Unix(),
		"exp":     now.Add(i.expiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign entry token: %w", err)
	}

	return tokenStr, nil
}
