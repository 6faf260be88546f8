package auth

import (
	"errors"

	"github.com/rs/zerolog"
)

var ErrAuthenticationRejected = errors.New("auth: login incorrect")

// Gate makes exactly one store lookup per login attempt. There is no
// retry, lockout or rate limiting.
type Gate struct {
	store  CredentialStore
	logger zerolog.Logger
}

func NewGate(store CredentialStore, logger zerolog.Logger) *Gate {
	return &Gate{store: store, logger: logger}
}

// Check returns true when the pair is accepted. Store failures reject.
func (g *Gate) Check(user, password string) bool {
	if user == "" || g.store == nil {
		return false
	}
	ok, err := g.store.Contains(user, password)
	if err != nil {
		g.logger.Error().Err(err).Str("user", user).Msg("credential lookup failed")
		return false
	}
	return ok
}

// Authorize is Check expressed as an error.
func (g *Gate) Authorize(user, password string) error {
	if !g.Check(user, password) {
		return ErrAuthenticationRejected
	}
	return nil
}
