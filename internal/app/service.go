package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rkanadam/sssbcsj-api/internal/auth"
	"github.com/rkanadam/sssbcsj-api/internal/birthday"
	"github.com/rkanadam/sssbcsj-api/internal/export"
	"github.com/rkanadam/sssbcsj-api/internal/rbac"
	"github.com/rkanadam/sssbcsj-api/internal/registration"
	"github.com/rkanadam/sssbcsj-api/internal/session"
	"github.com/rkanadam/sssbcsj-api/internal/signup"
	"github.com/rkanadam/sssbcsj-api/internal/util"
)

// Session is an authenticated caller.
type Session struct {
	Token     string
	JTI       string
	Caller    signup.Caller
	Role      rbac.Role
	ExpiresAt time.Time
}

func (s Session) Viewer() signup.Viewer {
	return signup.Viewer{Caller: s.Caller, IsAdmin: s.Role == rbac.RoleAdmin}
}

// Verifier checks identity-provider ID tokens.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (auth.Identity, error)
}

// SessionStore remembers issued session tokens so they can be revoked.
type SessionStore interface {
	SaveSession(ctx context.Context, jti string, record session.Record, expiresAt time.Time) error
	LookupSession(ctx context.Context, jti string) (session.Record, error)
	RevokeSession(ctx context.Context, jti string) error
	Ping(ctx context.Context) error
}

// PhoneVerifier runs SMS verification of the caller's phone number.
type PhoneVerifier interface {
	SendCode(ctx context.Context, phoneNumber, recaptchaToken string) (string, error)
	Verify(ctx context.Context, uid, verificationToken, code string) (string, error)
}

// Notifier sends the ad-hoc admin notifications.
type Notifier interface {
	SendTemplatedMessage(ctx context.Context, to []string, template string, params any) error
	SendPlainMessage(ctx context.Context, to []string, subject, body string) error
	SendSMS(ctx context.Context, to []string, body string) error
	Channels() map[string]bool
}

// Options holds everything the service is built from. Only Signups is
// required; a nil collaborator disables the routes that need it.
type Options struct {
	Domains       signup.Domains
	Signups       *signup.Service
	Exports       *export.Service
	Registrations *registration.Service
	Birthdays     *birthday.Service
	Notifier      Notifier
	Sessions      SessionStore
	Verifier      Verifier
	Phones        PhoneVerifier
	Allowlist     rbac.Allowlist
	SessionSecret string
	SessionTTL    time.Duration
}

type Service struct {
	domains       signup.Domains
	signups       *signup.Service
	exports       *export.Service
	registrations *registration.Service
	birthdays     *birthday.Service
	notifier      Notifier
	sessions      SessionStore
	verifier      Verifier
	phones        PhoneVerifier
	allowlist     rbac.Allowlist
	secret        []byte
	ttl           time.Duration
	now           func() time.Time
}

func New(opts Options) *Service {
	if opts.Domains == nil {
		opts.Domains = signup.NewDomains(signup.ServiceDomain, signup.DevotionDomain)
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	secret := []byte(opts.SessionSecret)
	if len(secret) == 0 {
		secret = auth.NewSecret()
	}
	return &Service{
		domains:       opts.Domains,
		signups:       opts.Signups,
		exports:       opts.Exports,
		registrations: opts.Registrations,
		birthdays:     opts.Birthdays,
		notifier:      opts.Notifier,
		sessions:      opts.Sessions,
		verifier:      opts.Verifier,
		phones:        opts.Phones,
		allowlist:     opts.Allowlist,
		secret:        secret,
		ttl:           opts.SessionTTL,
		now:           time.Now,
	}
}

func (s *Service) Can(role rbac.Role, action rbac.Action) bool {
	return rbac.Can(role, action)
}

// Exchange verifies an ID token and issues a session token for it.
func (s *Service) Exchange(ctx context.Context, idToken string) (Session, error) {
	identity, err := s.verify(ctx, idToken)
	if err != nil {
		return Session{}, err
	}
	return s.issue(ctx, identity)
}

func (s *Service) issue(ctx context.Context, identity auth.Identity) (Session, error) {
	role := s.allowlist.RoleFor(identity.Email)
	expiresAt := s.now().Add(s.ttl)
	claims := auth.Claims{
		Sub:   identity.UID,
		Name:  identity.Name,
		Email: identity.Email,
		Phone: identity.PhoneNumber,
		Role:  string(role),
		JTI:   util.NewID("ses"),
		Exp:   expiresAt.Unix(),
	}
	token, err := auth.IssueToken(s.secret, claims)
	if err != nil {
		return Session{}, err
	}
	if s.sessions != nil {
		record := session.Record{Identity: identity, Role: string(role), CreatedAt: s.now().UTC()}
		if err := s.sessions.SaveSession(ctx, claims.JTI, record, expiresAt); err != nil {
			return Session{}, fmt.Errorf("save session: %w", err)
		}
	}
	return Session{
		Token:     token,
		JTI:       claims.JTI,
		Caller:    callerFrom(identity),
		Role:      role,
		ExpiresAt: expiresAt,
	}, nil
}

// SessionFromToken accepts either a session token issued by Exchange or a
// raw ID token. Roles are always taken from the current allowlist.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	if !auth.IsSessionToken(token) {
		identity, err := s.verify(ctx, token)
		if err != nil {
			return Session{}, err
		}
		return Session{Token: token, Caller: callerFrom(identity), Role: s.allowlist.RoleFor(identity.Email)}, nil
	}

	claims, err := auth.ParseToken(s.secret, token)
	if err != nil {
		return Session{}, err
	}
	identity := auth.Identity{UID: claims.Sub, Name: claims.Name, Email: claims.Email, PhoneNumber: claims.Phone}
	if s.sessions != nil {
		record, err := s.sessions.LookupSession(ctx, claims.JTI)
		if errors.Is(err, session.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		if err != nil {
			return Session{}, fmt.Errorf("lookup session: %w", err)
		}
		identity = record.Identity
	}
	return Session{
		Token:     token,
		JTI:       claims.JTI,
		Caller:    callerFrom(identity),
		Role:      s.allowlist.RoleFor(identity.Email),
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Logout revokes a session token. ID tokens cannot be revoked here.
func (s *Service) Logout(ctx context.Context, sess Session) error {
	if s.sessions == nil || sess.JTI == "" {
		return nil
	}
	return s.sessions.RevokeSession(ctx, sess.JTI)
}

func (s *Service) verify(ctx context.Context, idToken string) (auth.Identity, error) {
	if strings.TrimSpace(idToken) == "" {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	if s.verifier == nil {
		return auth.Identity{}, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Identity provider not configured", nil)
	}
	return s.verifier.Verify(ctx, idToken)
}

func callerFrom(identity auth.Identity) signup.Caller {
	return signup.Caller{
		ID:    identity.UID,
		Name:  identity.Name,
		Email: identity.Email,
		Phone: identity.PhoneNumber,
	}
}

func (s *Service) domain(name string) (signup.Domain, error) {
	domain, ok := s.domains.Lookup(name)
	if !ok {
		return signup.Domain{}, domainError(http.StatusNotFound, "NOT_FOUND", "Unknown signup domain", map[string]any{"domain": name})
	}
	return domain, nil
}

func (s *Service) ListSheets(ctx context.Context, domainName string, sess Session, tag string) ([]signup.Sheet, error) {
	domain, err := s.domain(domainName)
	if err != nil {
		return nil, err
	}
	return s.signups.ListUpcoming(ctx, domain, sess.Viewer(), tag)
}

func (s *Service) Sheet(ctx context.Context, domainName, documentID, sheetTitle string, sess Session, includeAll bool) (signup.Sheet, error) {
	domain, err := s.domain(domainName)
	if err != nil {
		return signup.Sheet{}, err
	}
	// includeAll only widens the view for roles that may see every signee.
	includeAll = includeAll && s.Can(sess.Role, rbac.ActionViewAll)
	return s.signups.DetailedSheet(ctx, domain, documentID, sheetTitle, sess.Viewer(), includeAll)
}

func (s *Service) MySignups(ctx context.Context, domainName string, sess Session) ([]signup.Sheet, error) {
	domain, err := s.domain(domainName)
	if err != nil {
		return nil, err
	}
	return s.signups.MySignups(ctx, domain, sess.Caller)
}

func (s *Service) SubmitSignups(ctx context.Context, domainName, documentID, sheetTitle string, items []signup.ItemRequest, sess Session) (signup.BatchResult, error) {
	domain, err := s.domain(domainName)
	if err != nil {
		return signup.BatchResult{}, err
	}
	if len(items) == 0 {
		return signup.BatchResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "items are required", nil)
	}
	batch := signup.Batch{DocumentID: documentID, SheetTitle: sheetTitle, Items: items}
	return s.signups.SubmitBatch(ctx, domain, batch, sess.Caller)
}

func (s *Service) Export(ctx context.Context, domainName, format string, archive bool, sess Session) (*export.Result, error) {
	domain, err := s.domain(domainName)
	if err != nil {
		return nil, err
	}
	if s.exports == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export not configured", nil)
	}
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return s.exports.Export(ctx, export.Request{Domain: domain, Format: parsed, Viewer: sess.Viewer(), Archive: archive})
}

// NotificationInput is an ad-hoc admin message. Email sends Template with
// Params when a template is named, otherwise Subject and Body.
type NotificationInput struct {
	Channel  string         `json:"channel"`
	To       []string       `json:"to"`
	Subject  string         `json:"subject"`
	Body     string         `json:"body"`
	Template string         `json:"template"`
	Params   map[string]any `json:"params"`
}

func (s *Service) Notify(ctx context.Context, input NotificationInput) error {
	if s.notifier == nil {
		return domainError(http.StatusServiceUnavailable, "CHANNEL_UNAVAILABLE", "Notifications not configured", nil)
	}
	var err error
	switch strings.ToLower(strings.TrimSpace(input.Channel)) {
	case "sms":
		if strings.TrimSpace(input.Body) == "" {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "body is required", nil)
		}
		err = s.notifier.SendSMS(ctx, input.To, input.Body)
	case "email":
		switch {
		case strings.TrimSpace(input.Template) != "":
			err = s.notifier.SendTemplatedMessage(ctx, input.To, input.Template, input.Params)
		case strings.TrimSpace(input.Subject) == "" || strings.TrimSpace(input.Body) == "":
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "subject and body are required", nil)
		default:
			err = s.notifier.SendPlainMessage(ctx, input.To, input.Subject, input.Body)
		}
	default:
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "channel must be sms or email", map[string]any{"channel": input.Channel})
	}
	if err != nil {
		return notificationError(err)
	}
	return nil
}

func (s *Service) SearchRegistrations(ctx context.Context, q string) ([][]string, error) {
	if s.registrations == nil || !s.registrations.IsConfigured() {
		return [][]string{}, nil
	}
	return s.registrations.Search(ctx, q)
}

func (s *Service) SaveRegistrations(ctx context.Context, rows [][]string) (registration.SaveResult, error) {
	if s.registrations == nil || !s.registrations.IsConfigured() {
		return registration.SaveResult{}, domainError(http.StatusServiceUnavailable, "REGISTRATIONS_UNAVAILABLE", "Registration sheet not configured", nil)
	}
	if len(rows) == 0 {
		return registration.SaveResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "registrations are required", nil)
	}
	return s.registrations.Save(ctx, rows)
}

func (s *Service) BirthdayEvents(ctx context.Context) ([]birthday.Event, error) {
	if s.birthdays == nil {
		return []birthday.Event{}, nil
	}
	return s.birthdays.List(ctx)
}

// HostBirthday books the caller's home. Contact fields left empty are filled
// from the caller's identity.
func (s *Service) HostBirthday(ctx context.Context, input birthday.Signup, sess Session) (birthday.Event, error) {
	if s.birthdays == nil || !s.birthdays.IsConfigured() {
		return birthday.Event{}, domainError(http.StatusServiceUnavailable, "BIRTHDAY_UNAVAILABLE", "Birthday calendar not configured", nil)
	}
	if strings.TrimSpace(input.Name) == "" {
		input.Name = sess.Caller.Name
	}
	if strings.TrimSpace(input.Email) == "" {
		input.Email = sess.Caller.Email
	}
	if strings.TrimSpace(input.PhoneNumber) == "" {
		input.PhoneNumber = sess.Caller.Phone
	}
	return s.birthdays.Host(ctx, input)
}

// SendPhoneCode texts a verification code to the number the caller wants on
// their profile.
func (s *Service) SendPhoneCode(ctx context.Context, phoneNumber, recaptchaToken string) (string, error) {
	if s.phones == nil {
		return "", phoneUnavailable()
	}
	return s.phones.SendCode(ctx, phoneNumber, recaptchaToken)
}

// VerifyPhone checks the code and records the number on the caller's account.
// A caller holding a session token gets a replacement session carrying the
// new number; the old one is revoked.
func (s *Service) VerifyPhone(ctx context.Context, sess Session, verificationToken, code string) (Session, error) {
	if s.phones == nil {
		return Session{}, phoneUnavailable()
	}
	phoneNumber, err := s.phones.Verify(ctx, sess.Caller.ID, verificationToken, code)
	if err != nil {
		return Session{}, err
	}
	identity := auth.Identity{UID: sess.Caller.ID, Name: sess.Caller.Name, Email: sess.Caller.Email, PhoneNumber: phoneNumber}
	if sess.JTI == "" {
		sess.Caller = callerFrom(identity)
		return sess, nil
	}
	renewed, err := s.issue(ctx, identity)
	if err != nil {
		return Session{}, err
	}
	if err := s.Logout(ctx, sess); err != nil {
		slog.Warn("revoke replaced session", "jti", sess.JTI, "error", err)
	}
	return renewed, nil
}

func phoneUnavailable() error {
	return domainError(http.StatusServiceUnavailable, "PHONE_VERIFICATION_UNAVAILABLE", "Phone verification not configured", nil)
}

// Ready reports the state of the optional backing services. Only a
// configured Redis that does not answer makes the API not ready.
func (s *Service) Ready(ctx context.Context) (bool, map[string]any) {
	ready := true
	checks := map[string]any{}
	if s.sessions != nil {
		if err := s.sessions.Ping(ctx); err != nil {
			ready = false
			checks["redis"] = map[string]any{"ok": false, "error": err.Error()}
		} else {
			checks["redis"] = map[string]any{"ok": true}
		}
	}
	if s.registrations != nil && s.registrations.IsConfigured() {
		checks["search"] = map[string]any{"ok": true, "index": s.registrations.IndexHealthy()}
	}
	if s.notifier != nil {
		checks["notifications"] = s.notifier.Channels()
	}
	return ready, checks
}

// Summary is the session payload returned to clients.
func (s Session) Summary() map[string]any {
	payload := map[string]any{
		"authenticated": true,
		"userName":      s.Caller.Name,
		"email":         s.Caller.Email,
		"phoneNumber":   s.Caller.Phone,
		"role":          s.Role,
		"isAdmin":       s.Role == rbac.RoleAdmin,
	}
	if !s.ExpiresAt.IsZero() {
		payload["expiresAt"] = s.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return payload
}
