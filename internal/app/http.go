package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rkanadam/sssbcsj-api/internal/auth"
	"github.com/rkanadam/sssbcsj-api/internal/birthday"
	"github.com/rkanadam/sssbcsj-api/internal/export"
	"github.com/rkanadam/sssbcsj-api/internal/rbac"
	"github.com/rkanadam/sssbcsj-api/internal/registration"
	"github.com/rkanadam/sssbcsj-api/internal/signup"
	"github.com/rkanadam/sssbcsj-api/internal/store"
	"github.com/rkanadam/sssbcsj-api/internal/util"
)

type HTTPServer struct {
	service     *Service
	corsOrigins []string
}

func NewHTTPServer(service *Service, corsOrigins []string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigins: corsOrigins}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		ready, checks := s.service.Ready(ctx)
		status := http.StatusOK
		state := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			state = "not_ready"
		}
		writeJSON(w, status, map[string]any{"ok": ready, "status": state, "checks": checks})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session" {
		var body struct {
			IDToken string `json:"idToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		idToken := strings.TrimSpace(body.IDToken)
		if idToken == "" {
			idToken = bearerToken(r)
		}
		session, err := s.service.Exchange(r.Context(), idToken)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		payload := session.Summary()
		payload["token"] = session.Token
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, session.Summary())
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		if token := bearerToken(r); token != "" {
			if session, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				if err := s.service.Logout(r.Context(), session); err != nil {
					slog.Warn("session revoke failed", "request_id", requestID(r.Context()), "error", err)
				}
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.URL.Path == "/api/notifications" && r.Method == http.MethodPost {
		if !s.service.Can(session.Role, rbac.ActionNotify) {
			forbid(w)
			return
		}
		var body NotificationInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.Notify(r.Context(), body); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.URL.Path == "/api/registrations" {
		s.handleRegistrations(w, r, session)
		return
	}

	if r.URL.Path == "/api/birthday/events" {
		s.handleBirthday(w, r, session)
		return
	}

	if r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/profile/") {
		s.handleProfile(w, r, session)
		return
	}

	parts, err := splitPath(r.URL.EscapedPath())
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PATH", "Malformed path", nil)
		return
	}
	if len(parts) >= 3 && parts[0] == "api" {
		if _, known := s.service.domains.Lookup(parts[1]); known {
			s.handleDomain(w, r, session, parts[1], parts[2:])
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleDomain serves /api/{domain}/... with rest holding the segments
// after the domain name.
func (s *HTTPServer) handleDomain(w http.ResponseWriter, r *http.Request, session Session, domain string, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "sheets":
		sheets, err := s.service.ListSheets(r.Context(), domain, session, r.URL.Query().Get("tag"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sheets": sheets})

	case r.Method == http.MethodGet && len(rest) == 3 && rest[0] == "sheets":
		sheet, err := s.service.Sheet(r.Context(), domain, rest[1], rest[2], session, queryBool(r, "all"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sheet)

	case r.Method == http.MethodPost && len(rest) == 4 && rest[0] == "sheets" && rest[3] == "signups":
		if !s.service.Can(session.Role, rbac.ActionSignup) {
			forbid(w)
			return
		}
		var body struct {
			Items []signup.ItemRequest `json:"items"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.SubmitSignups(r.Context(), domain, rest[1], rest[2], body.Items, session)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"results": result.Results,
			"applied": len(result.Applied),
			"signees": result.Applied,
		})

	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "mine":
		sheets, err := s.service.MySignups(r.Context(), domain, session)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sheets": sheets})

	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "export":
		if !s.service.Can(session.Role, rbac.ActionExport) {
			forbid(w)
			return
		}
		archive := queryBool(r, "archive")
		result, err := s.service.Export(r.Context(), domain, r.URL.Query().Get("format"), archive, session)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if archive {
			writeJSON(w, http.StatusOK, result)
			return
		}
		writeFile(w, result)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleRegistrations(w http.ResponseWriter, r *http.Request, session Session) {
	switch r.Method {
	case http.MethodGet:
		if !s.service.Can(session.Role, rbac.ActionRegistrationSearch) {
			forbid(w)
			return
		}
		rows, err := s.service.SearchRegistrations(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"registrations": rows})
	case http.MethodPost:
		if !s.service.Can(session.Role, rbac.ActionRegistrationSave) {
			forbid(w)
			return
		}
		var body struct {
			Registrations [][]string `json:"registrations"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.SaveRegistrations(r.Context(), body.Registrations)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

// handleProfile serves the two steps of phone verification.
func (s *HTTPServer) handleProfile(w http.ResponseWriter, r *http.Request, session Session) {
	if !s.service.Can(session.Role, rbac.ActionVerifyPhone) {
		forbid(w)
		return
	}
	switch r.URL.Path {
	case "/api/profile/verification-code":
		var body struct {
			PhoneNumber    string `json:"phoneNumber"`
			RecaptchaToken string `json:"recaptchaToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		token, err := s.service.SendPhoneCode(r.Context(), body.PhoneNumber, body.RecaptchaToken)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"verificationToken": token})
	case "/api/profile/phone":
		var body struct {
			VerificationToken string `json:"verificationToken"`
			VerificationCode  string `json:"verificationCode"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		renewed, err := s.service.VerifyPhone(r.Context(), session, body.VerificationToken, body.VerificationCode)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		payload := renewed.Summary()
		if renewed.Token != session.Token {
			payload["token"] = renewed.Token
		}
		writeJSON(w, http.StatusOK, payload)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleBirthday(w http.ResponseWriter, r *http.Request, session Session) {
	switch r.Method {
	case http.MethodGet:
		events, err := s.service.BirthdayEvents(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": events})
	case http.MethodPost:
		if !s.service.Can(session.Role, rbac.ActionHostBirthday) {
			forbid(w)
			return
		}
		var body birthday.Signup
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		event, err := s.service.HostBirthday(r.Context(), body, session)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, event)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		s.fail(w, r, err)
		return Session{}, false
	}
	return session, true
}

// fail maps err to a response and logs the ones that are not the caller's
// fault.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "request_id", requestID(r.Context()), "path", r.URL.Path, "code", code, "error", err)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = util.NewID("req")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.allowedOrigin(r.Header.Get("Origin")))
		writer.Header().Set("X-Request-ID", id)

		next.ServeHTTP(writer, r)

		slog.Info("request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

// allowedOrigin echoes the request origin when it is allowed; "*" allows all.
func (s *HTTPServer) allowedOrigin(origin string) string {
	if slices.Contains(s.corsOrigins, "*") {
		return "*"
	}
	if origin != "" && slices.Contains(s.corsOrigins, origin) {
		return origin
	}
	if len(s.corsOrigins) > 0 {
		return s.corsOrigins[0]
	}
	return ""
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	if corsOrigin != "" {
		header.Set("Access-Control-Allow-Origin", corsOrigin)
	}
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Bearer, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Vary", "Origin")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeFile(w http.ResponseWriter, result *export.Result) {
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func forbid(w http.ResponseWriter) {
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// bearerToken reads "Authorization: Bearer <token>", or the older
// "Bearer: firebase <token>" header some clients still send.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	legacy := strings.TrimSpace(r.Header.Get("Bearer"))
	if scheme, token, ok := strings.Cut(legacy, " "); ok && strings.EqualFold(scheme, "firebase") {
		return strings.TrimSpace(token)
	}
	return ""
}

// splitPath splits an escaped path and unescapes each segment, so sheet
// titles may carry an encoded "/".
func splitPath(path string) ([]string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, "/")
	for i, part := range parts {
		unescaped, err := url.PathUnescape(part)
		if err != nil {
			return nil, err
		}
		parts[i] = unescaped
	}
	return parts, nil
}

func queryBool(r *http.Request, key string) bool {
	value, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && value
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, signup.ErrMalformedSheet) || errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "SHEET_NOT_FOUND", "Sheet not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, registration.ErrInvalidRow) || errors.Is(err, birthday.ErrInvalidSignup) || errors.Is(err, export.ErrUnsupportedFormat) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	}
	if errors.Is(err, auth.ErrInvalidPhone) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	}
	if errors.Is(err, auth.ErrCodeRejected) {
		return http.StatusUnprocessableEntity, "CODE_REJECTED", "Verification code rejected", nil
	}
	if errors.Is(err, export.ErrArchiveUnavailable) {
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export archive not configured", nil
	}
	var upstream *store.UpstreamError
	if errors.As(err, &upstream) {
		return http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "Upstream service unavailable", map[string]any{"op": upstream.Op}
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
