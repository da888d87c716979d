package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"google.golang.org/api/option"

	"github.com/rkanadam/sssbcsj-api/internal/auth"
	"github.com/rkanadam/sssbcsj-api/internal/birthday"
	"github.com/rkanadam/sssbcsj-api/internal/config"
	"github.com/rkanadam/sssbcsj-api/internal/email"
	"github.com/rkanadam/sssbcsj-api/internal/export"
	"github.com/rkanadam/sssbcsj-api/internal/notify"
	"github.com/rkanadam/sssbcsj-api/internal/rbac"
	"github.com/rkanadam/sssbcsj-api/internal/registration"
	"github.com/rkanadam/sssbcsj-api/internal/search"
	"github.com/rkanadam/sssbcsj-api/internal/session"
	"github.com/rkanadam/sssbcsj-api/internal/signup"
	"github.com/rkanadam/sssbcsj-api/internal/sms"
	"github.com/rkanadam/sssbcsj-api/internal/store"
)

// Runtime is everything built from the configuration. Close releases the
// connections it holds.
type Runtime struct {
	Config        config.Config
	Store         store.Store
	Domains       signup.Domains
	Signups       *signup.Service
	Exports       *export.Service
	Registrations *registration.Service
	Birthdays     *birthday.Service
	Notifier      *notify.Notifier
	Service       *Service

	closers []func()
}

func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// Build wires the configured backends. Optional services whose settings are
// missing are left disabled rather than failing startup.
func Build(ctx context.Context, cfg config.Config) (*Runtime, error) {
	if cfg.SessionSecret == "" {
		slog.Warn("SESSION_SECRET not set; using a per-process secret, sessions end on restart")
	} else if err := auth.CheckSecret(cfg.SessionSecret); err != nil {
		return nil, fmt.Errorf("SESSION_SECRET: %w", err)
	}

	rt := &Runtime{Config: cfg}
	loc := cfg.Location()

	googleOpts, err := googleOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(cfg.StoreBackend) {
	case "google":
		googleStore, err := store.NewGoogleStore(ctx, googleOpts...)
		if err != nil {
			return nil, err
		}
		rt.Store = googleStore
	case "workbook", "":
		workbookStore, err := store.NewWorkbookStore(cfg.WorkbookDir)
		if err != nil {
			return nil, err
		}
		rt.Store = workbookStore
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	}, nil)
	texter := sms.NewSender(sms.Config{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		From:       cfg.TwilioFrom,
	})
	rt.Notifier = notify.New(mailer, texter)
	slog.Info("notification channels", "email", mailer.IsConfigured(), "sms", texter.IsConfigured())

	rt.Domains = signup.NewDomains(
		signup.ServiceDomain.WithKeyword(cfg.ServiceKeyword),
		signup.DevotionDomain.WithKeyword(cfg.DevotionKeyword),
	)
	rt.Signups = signup.NewService(rt.Store, rt.Notifier, loc)

	var archive export.Archive
	if cfg.MinioEndpoint != "" {
		minioArchive, err := export.NewMinioArchive(export.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := minioArchive.EnsureBucket(ctx); err != nil {
			slog.Warn("export archive unavailable", "endpoint", cfg.MinioEndpoint, "error", err)
		} else {
			archive = minioArchive
		}
	}
	rt.Exports = export.NewService(rt.Signups, archive)

	var meili *search.Meili
	if cfg.MeiliURL != "" && cfg.RegistrationSpreadsheetID != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		rt.closers = append(rt.closers, meili.Close)
	}
	rt.Registrations = registration.NewService(rt.Store, cfg.RegistrationSpreadsheetID, cfg.RegistrationSheet, meili)
	if meili != nil {
		if err := rt.Registrations.Reindex(ctx); err != nil {
			slog.Warn("registration index not refreshed", "error", err)
		}
	}

	var calendar birthday.Calendar
	if cfg.BirthdayCalendarID != "" {
		googleCalendar, err := birthday.NewGoogleCalendar(ctx, loc, googleOpts...)
		if err != nil {
			rt.Close()
			return nil, err
		}
		calendar = googleCalendar
	}
	rt.Birthdays = birthday.NewService(calendar, birthday.Config{
		CalendarID: cfg.BirthdayCalendarID,
		Organizers: cfg.BirthdayOrganizers,
		Contact:    cfg.BirthdayContact,
	}, rt.Notifier, loc)

	opts := Options{
		Domains:       rt.Domains,
		Signups:       rt.Signups,
		Exports:       rt.Exports,
		Registrations: rt.Registrations,
		Birthdays:     rt.Birthdays,
		Notifier:      rt.Notifier,
		Allowlist:     rbac.NewAllowlist(cfg.AdminEmails),
		SessionSecret: cfg.SessionSecret,
		SessionTTL:    cfg.SessionTTL,
	}
	if cfg.FirebaseProjectID != "" {
		opts.Verifier = auth.NewFirebaseVerifier(cfg.FirebaseProjectID)
	} else {
		slog.Warn("FIREBASE_PROJECT_ID not set; only session tokens are accepted")
	}
	if cfg.FirebaseAPIKey != "" {
		toolkit, err := auth.NewIdentityToolkit(ctx, cfg.FirebaseAPIKey, googleOpts...)
		if err != nil {
			rt.Close()
			return nil, err
		}
		opts.Phones = auth.NewPhoneVerifier(toolkit)
	}
	if cfg.RedisURL != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = redisStore.Close() })
		opts.Sessions = redisStore
	}
	rt.Service = New(opts)
	return rt, nil
}

// googleOptions authorizes the Google clients with the credentials file, or
// with application default credentials when none is configured.
func googleOptions(ctx context.Context, cfg config.Config) ([]option.ClientOption, error) {
	scopes := slices.Concat(store.GoogleScopes, birthday.Scopes, auth.PhoneScopes)
	if cfg.GoogleCredentialsFile == "" {
		if cfg.StoreBackend == "google" || cfg.BirthdayCalendarID != "" || cfg.FirebaseAPIKey != "" {
			slog.Info("using application default credentials for google apis")
		}
		return []option.ClientOption{option.WithScopes(scopes...)}, nil
	}
	credentials, err := os.ReadFile(cfg.GoogleCredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read google credentials: %w", err)
	}
	client, err := store.GoogleHTTPClient(ctx, credentials, scopes...)
	if err != nil {
		return nil, err
	}
	return []option.ClientOption{option.WithHTTPClient(client)}, nil
}
