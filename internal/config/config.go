package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr        string
	CORSOrigins []string
	LogLevel    string
	Timezone    string
	// Sessions
	SessionSecret string
	SessionTTL    time.Duration
	RedisURL      string
	// Identity
	FirebaseProjectID string
	// FirebaseAPIKey enables phone verification; empty disables it.
	FirebaseAPIKey string
	AdminEmails    []string
	// Document store
	StoreBackend          string
	WorkbookDir           string
	GoogleCredentialsFile string
	ServiceKeyword        string
	DevotionKeyword       string
	// Registrations
	RegistrationSpreadsheetID string
	RegistrationSheet         string
	MeiliURL                  string
	MeiliMasterKey            string
	// Birthday bhajans
	BirthdayCalendarID string
	BirthdayOrganizers []string
	BirthdayContact    string
	// SMTP - empty host disables email
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	// Twilio - empty account disables SMS
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	// MinIO export archive - empty endpoint disables archiving
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	OperatorEmail  string
}

// Load reads the configuration from the environment, after loading a .env
// file from the working directory when one exists. Variables already set in
// the environment win over the file.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() Config {
	return Config{
		Addr:        getenv("API_ADDR", ":8787"),
		CORSOrigins: getenvList("CORS_ORIGINS", []string{"*"}),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		Timezone:    getenv("TIMEZONE", "America/Los_Angeles"),

		SessionSecret: getenv("SESSION_SECRET", ""),
		SessionTTL:    time.Duration(getenvInt("SESSION_TTL_SECONDS", 1800)) * time.Second,
		RedisURL:      getenv("REDIS_URL", ""),

		FirebaseProjectID: getenv("FIREBASE_PROJECT_ID", ""),
		FirebaseAPIKey:    getenv("FIREBASE_API_KEY", ""),
		AdminEmails:       getenvList("ADMIN_EMAILS", nil),

		StoreBackend:          getenv("STORE_BACKEND", "workbook"),
		WorkbookDir:           getenv("WORKBOOK_DIR", "./data/workbooks"),
		GoogleCredentialsFile: getenv("GOOGLE_CREDENTIALS_FILE", ""),
		ServiceKeyword:        getenv("SERVICE_KEYWORD", "signup"),
		DevotionKeyword:       getenv("DEVOTION_KEYWORD", "bhajan"),

		RegistrationSpreadsheetID: getenv("REGISTRATION_SPREADSHEET_ID", ""),
		RegistrationSheet:         getenv("REGISTRATION_SHEET", "2020 Registration"),
		MeiliURL:                  getenv("MEILI_URL", ""),
		MeiliMasterKey:            getenv("MEILI_MASTER_KEY", ""),

		BirthdayCalendarID: getenv("BIRTHDAY_CALENDAR_ID", ""),
		BirthdayOrganizers: getenvList("BIRTHDAY_ORGANIZERS", nil),
		BirthdayContact:    getenv("BIRTHDAY_CONTACT", ""),

		SMTPHost:     getenv("SMTP_HOST", ""),
		SMTPPort:     getenv("SMTP_PORT", "587"),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", ""),
		SMTPFromName: getenv("SMTP_FROM_NAME", "SSSBC San Jose"),

		TwilioAccountSID: getenv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getenv("TWILIO_AUTH_TOKEN", ""),
		TwilioFrom:       getenv("TWILIO_FROM", ""),

		MinioEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "signup-exports"),
		MinioUseSSL:    getenvBool("MINIO_USE_SSL", false),
		OperatorEmail:  getenv("OPERATOR_EMAIL", ""),
	}
}

// Location resolves Timezone, falling back to the host's zone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getenvList splits a comma-separated variable, dropping empty entries.
func getenvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
