// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth handles the login and registration forms. A successful
// response becomes the session Identity; failures become display text.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/jeranaias/askchat/internal/api"
	"github.com/jeranaias/askchat/internal/session"
)

// Fallback error text when the server does not explain a failure.
const (
	LoginFailedText    = "Login failed"
	RegisterFailedText = "Registration failed"
)

// ErrInProgress is returned when a submission is already running.
var ErrInProgress = errors.New("authentication already in progress")

// =============================================================================
// FORMS
// =============================================================================

// LoginForm is the login form input.
type LoginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterForm is the registration form input.
type RegisterForm struct {
	Username string `json:"username" validate:"required,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// formValidate is the validator instance for auth forms.
var formValidate = validator.New()

// Validate checks the login form fields.
func (f LoginForm) Validate() error {
	return formValidate.Struct(f)
}

// Validate checks the registration form fields.
func (f RegisterForm) Validate() error {
	return formValidate.Struct(f)
}

// ValidationMessage turns a validator error into one line of form text.
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return "Enter a valid email address"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return field + " is invalid"
	}
}

// =============================================================================
// FLOW
// =============================================================================

// Authenticator is the subset of api.Client the flow needs.
type Authenticator interface {
	Login(ctx context.Context, creds api.Credentials) (*api.AuthResponse, error)
	Register(ctx context.Context, reg api.Registration) (*api.AuthResponse, error)
}

// Flow runs login and registration against the backend and records the
// resulting Identity. It tracks a loading flag and the last error text for
// the form to show.
type Flow struct {
	mu sync.Mutex

	client   Authenticator
	sessions *session.Store
	logger   *slog.Logger

	loading bool
	errText string
}

// NewFlow creates a flow. logger may be nil.
func NewFlow(client Authenticator, sessions *session.Store, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{client: client, sessions: sessions, logger: logger}
}

// Loading reports whether a submission is running.
func (f *Flow) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

// Error returns the text to show above the form, empty when none.
func (f *Flow) Error() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errText
}

// ClearError empties the form error.
func (f *Flow) ClearError() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errText = ""
}

// Login validates form, exchanges it for a token and sets the Identity.
func (f *Flow) Login(ctx context.Context, form LoginForm) error {
	form.Email = strings.TrimSpace(form.Email)
	return f.run(form.Validate, LoginFailedText, func() (*api.AuthResponse, error) {
		return f.client.Login(ctx, api.Credentials{Email: form.Email, Password: form.Password})
	})
}

// Register validates form, creates the account and sets the Identity.
func (f *Flow) Register(ctx context.Context, form RegisterForm) error {
	form.Username = strings.TrimSpace(form.Username)
	form.Email = strings.TrimSpace(form.Email)
	return f.run(form.Validate, RegisterFailedText, func() (*api.AuthResponse, error) {
		return f.client.Register(ctx, api.Registration{
			Username: form.Username,
			Email:    form.Email,
			Password: form.Password,
		})
	})
}

func (f *Flow) run(validate func() error, fallback string, call func() (*api.AuthResponse, error)) error {
	f.mu.Lock()
	if f.loading {
		f.mu.Unlock()
		return ErrInProgress
	}
	f.errText = ""
	if err := validate(); err != nil {
		f.errText = ValidationMessage(err)
		f.mu.Unlock()
		return err
	}
	f.loading = true
	f.mu.Unlock()

	resp, err := call()

	f.mu.Lock()
	f.loading = false
	if err != nil {
		f.errText = api.DisplayMessage(err, fallback)
		f.mu.Unlock()
		f.logger.Warn("authentication failed", "error", err)
		return err
	}
	f.mu.Unlock()

	f.sessions.SetIdentity(session.Identity{
		ID:       resp.User.ID,
		Username: resp.User.Username,
		Email:    resp.User.Email,
		Token:    resp.Token,
	})
	return nil
}
