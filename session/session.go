// Package session obtains authenticated cookies for a scrape run.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aluiziolira/go-scrape-baldor/models"
)

// ErrAuthenticationTimeout matches every *AuthTimeoutError.
var ErrAuthenticationTimeout = errors.New("session: authentication timed out")

// AuthTimeoutError is returned when the post-login marker never showed up.
type AuthTimeoutError struct {
	Marker  string
	Timeout time.Duration
	Err     error
}

func (e *AuthTimeoutError) Error() string {
	return fmt.Sprintf("session: login marker %q not present after %s: %v", e.Marker, e.Timeout, e.Err)
}

func (e *AuthTimeoutError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrAuthenticationTimeout) hold.
func (e *AuthTimeoutError) Is(target error) bool { return target == ErrAuthenticationTimeout }

// Credentials is the account used to log in.
type Credentials struct {
	Email    string
	Password string
}

// Validate rejects empty credentials before a browser is started.
func (c Credentials) Validate() error {
	if c.Email == "" {
		return errors.New("session: email is empty")
	}
	if c.Password == "" {
		return errors.New("session: password is empty")
	}
	return nil
}

// Provider produces the credential bundle for a run.
type Provider interface {
	Authenticate(ctx context.Context, creds Credentials) (models.CredentialBundle, error)
}

// StaticProvider hands out a fixed bundle. It backs tests and runs that reuse
// exported cookies.
type StaticProvider struct {
	Bundle models.CredentialBundle
	Err    error
}

// Authenticate implements Provider.
func (p StaticProvider) Authenticate(ctx context.Context, _ Credentials) (models.CredentialBundle, error) {
	if err := ctx.Err(); err != nil {
		return models.CredentialBundle{}, err
	}
	if p.Err != nil {
		return models.CredentialBundle{}, p.Err
	}
	return p.Bundle, nil
}
