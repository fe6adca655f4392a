// Package broker adapts the SmartAPI client to the capabilities the straddle
// needs: a logged-in session, spot/option quotes and order submission.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/swapnilk30/AlgoTradingSetup01/pkg/smartconnect"
)

// Credentials are the SmartAPI login inputs.
type Credentials struct {
	ClientCode string
	PIN        string
	TOTPSecret string
}

// Validate reports missing fields.
func (c Credentials) Validate() error {
	if c.ClientCode == "" || c.PIN == "" || c.TOTPSecret == "" {
		return errors.New("broker: client code, pin and totp secret are required")
	}
	return nil
}

// SessionClient is the part of *smartconnect.SmartConnect a session needs.
type SessionClient interface {
	GenerateSession(ctx context.Context, clientCode, password, totp string) (*smartconnect.Session, error)
	TerminateSession(ctx context.Context) error
}

// Session logs in with a freshly generated TOTP code.
type Session struct {
	client SessionClient
	creds  Credentials
	now    func() time.Time

	// OnLogin, if set, is called after every login attempt.
	OnLogin func(err error)
}

// NewSession creates a Session. It does not log in.
func NewSession(client SessionClient, creds Credentials) *Session {
	return &Session{client: client, creds: creds, now: time.Now}
}

// SetClock overrides the clock the TOTP code is generated for.
func (s *Session) SetClock(now func() time.Time) { s.now = now }

// Login generates the TOTP for the current time and opens a session.
func (s *Session) Login(ctx context.Context) (*smartconnect.Session, error) {
	sess, err := s.login(ctx)
	if s.OnLogin != nil {
		s.OnLogin(err)
	}
	return sess, err
}

func (s *Session) login(ctx context.Context) (*smartconnect.Session, error) {
	if err := s.creds.Validate(); err != nil {
		return nil, err
	}
	code, err := totp.GenerateCode(s.creds.TOTPSecret, s.now())
	if err != nil {
		return nil, fmt.Errorf("broker: generate totp: %w", err)
	}
	sess, err := s.client.GenerateSession(ctx, s.creds.ClientCode, s.creds.PIN, code)
	if err != nil {
		return nil, fmt.Errorf("broker: login %s: %w", s.creds.ClientCode, err)
	}
	slog.Info("broker: session opened", "client_code", s.creds.ClientCode, "name", sess.Profile.Name)
	return sess, nil
}

// Logout ends the SmartAPI session.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.client.TerminateSession(ctx); err != nil {
		return fmt.Errorf("broker: logout %s: %w", s.creds.ClientCode, err)
	}
	slog.Info("broker: session closed", "client_code", s.creds.ClientCode)
	return nil
}
