package oauthflow

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/keeply-app/keeply-server/internal/integration"
)

// stateTTL bounds how long an authorization redirect may stay pending before
// the callback is rejected.
const stateTTL = 10 * time.Minute

const stateIssuer = "keeply-server"

// signState issues the OAuth state parameter: an HMAC-signed token binding
// the flow to the initiating user and provider family. A bare user id in the
// state (as some backends ship) is forgeable; requiring a valid signature
// plus a subject match against the authenticated session closes that hole.
func (f *Flow) signState(userID string, family integration.Family) (string, error) {
	now := f.now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    stateIssuer,
		Subject:   userID,
		Audience:  jwt.ClaimStrings{string(family)},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(f.secret)
	if err != nil {
		return "", fmt.Errorf("sign oauth state: %w", err)
	}
	return signed, nil
}

// verifyState checks signature, expiry, the subject against the
// authenticated user and the audience against the provider family.
func (f *Flow) verifyState(state, userID string, family integration.Family) error {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(state, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return f.secret, nil
	},
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return f.now() }),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", integration.ErrBadState, err)
	}

	if claims.Subject != userID {
		return fmt.Errorf("%w: state was issued for another user", integration.ErrBadState)
	}

	for _, aud := range claims.Audience {
		if aud == string(family) {
			return nil
		}
	}
	return fmt.Errorf("%w: state was issued for another provider", integration.ErrBadState)
}
