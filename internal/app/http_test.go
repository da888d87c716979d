package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/rkanadam/sssbcsj-api/internal/auth"
	"github.com/rkanadam/sssbcsj-api/internal/export"
	"github.com/rkanadam/sssbcsj-api/internal/notify"
	"github.com/rkanadam/sssbcsj-api/internal/rbac"
	"github.com/rkanadam/sssbcsj-api/internal/session"
	"github.com/rkanadam/sssbcsj-api/internal/signup"
	"github.com/rkanadam/sssbcsj-api/internal/store"
)

const (
	testDocument = "doc-service"
	testSheet    = "Service-2099-01-05"
	adminToken   = "admin.id.token"
	memberToken  = "member.id.token"
	otherToken   = "other.id.token"
)

type fakeVerifier struct {
	identities map[string]auth.Identity
}

func (f fakeVerifier) Verify(ctx context.Context, idToken string) (auth.Identity, error) {
	identity, ok := f.identities[idToken]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return identity, nil
}

type sent struct {
	channel  string
	to       []string
	template string
	subject  string
	body     string
}

type fakeNotifier struct {
	sent []sent
	err  error
}

func (f *fakeNotifier) SendTemplatedMessage(ctx context.Context, to []string, template string, params any) error {
	f.sent = append(f.sent, sent{channel: "email", to: to, template: template})
	return f.err
}

func (f *fakeNotifier) SendPlainMessage(ctx context.Context, to []string, subject, body string) error {
	f.sent = append(f.sent, sent{channel: "email", to: to, subject: subject, body: body})
	return f.err
}

func (f *fakeNotifier) SendSMS(ctx context.Context, to []string, body string) error {
	f.sent = append(f.sent, sent{channel: "sms", to: to, body: body})
	return f.err
}

func (f *fakeNotifier) Channels() map[string]bool {
	return map[string]bool{"email": true, "sms": true}
}

type fakePhoneBackend struct {
	setUID string
	err    error
}

func (f *fakePhoneBackend) SendCode(ctx context.Context, phoneNumber, recaptchaToken string) (string, error) {
	return "session-info", f.err
}

func (f *fakePhoneBackend) VerifyCode(ctx context.Context, sessionInfo, code string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "+14085550100", nil
}

func (f *fakePhoneBackend) SetPhoneNumber(ctx context.Context, uid, phoneNumber string) error {
	f.setUID = uid
	return nil
}

type testServer struct {
	handler  http.Handler
	store    *store.MemoryStore
	notifier *fakeNotifier
	phones   *fakePhoneBackend
	redis    *miniredis.Miniredis
}

func serviceRows(extra ...[]string) [][]string {
	rows := [][]string{
		{"date", "2099-01-05"},
		{"location", "Temple hall"},
		{"title", "Spring cleaning"},
		{"description", "Help clean the hall"},
		{"tags", "cleaning"},
		{"#"},
		{"", "Mops", "each", "3", "", "", "", ""},
	}
	return append(rows, extra...)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	memory := store.NewMemoryStore()
	memory.AddSheet(testDocument, "Service Signup", testSheet, serviceRows(
		[]string{"Wed, Jan/02/2099 03:04:05.000 PM UTC", "Brooms", "each", "1", "Other", "556", "other@example.com", ""},
	))
	memory.AddSheet(testDocument, "Service Signup", "Service-2000-01-01", serviceRows())
	memory.AddSheet(testDocument, "Service Signup", "Service-2099-02-01", [][]string{{"#"}, {"date", "x"}})

	notifier := &fakeNotifier{}
	phones := &fakePhoneBackend{}
	signups := signup.NewService(memory, notifier, time.UTC)
	service := New(Options{
		Signups:  signups,
		Exports:  export.NewService(signups, nil),
		Notifier: notifier,
		Phones:   auth.NewPhoneVerifier(phones),
		Sessions: session.NewRedisStoreWithClient(client),
		Verifier: fakeVerifier{identities: map[string]auth.Identity{
			adminToken:  {UID: "uid-admin", Name: "Admin", Email: "Admin@Example.com"},
			memberToken: {UID: "uid-member", Name: "Member", Email: "member@example.com", PhoneNumber: "555"},
			otherToken:  {UID: "uid-other", Name: "Other", Email: "other@example.com"},
		}},
		Allowlist:     rbac.NewAllowlist([]string{"admin@example.com"}),
		SessionSecret: "test-secret",
	})
	return &testServer{
		handler:  NewHTTPServer(service, []string{"*"}).Handler(),
		store:    memory,
		notifier: notifier,
		phones:   phones,
		redis:    mr,
	}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return payload
}

func sheetPath(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, part := range parts {
		escaped[i] = url.PathEscape(part)
	}
	return "/api/service/sheets/" + strings.Join(escaped, "/")
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK || decode(t, rec)["ok"] != true {
		t.Fatalf("health = %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID")
	}

	rec = ts.do(t, http.MethodGet, "/api/ready", "", nil)
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "ready" {
		t.Fatalf("ready = %d %s", rec.Code, rec.Body.String())
	}

	ts.redis.Close()
	rec = ts.do(t, http.MethodGet, "/api/ready", "", nil)
	if rec.Code != http.StatusServiceUnavailable || decode(t, rec)["status"] != "not_ready" {
		t.Fatalf("ready with redis down = %d %s", rec.Code, rec.Body.String())
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	for _, tc := range []struct {
		name  string
		token string
	}{
		{name: "missing", token: ""},
		{name: "unknown id token", token: "not.a.token"},
		{name: "forged session token", token: "e30.c2ln"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, "/api/service/sheets", tc.token, nil)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401: %s", rec.Code, rec.Body.String())
			}
			if decode(t, rec)["code"] != "UNAUTHORIZED" {
				t.Fatalf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestSessionExchangeAndLogout(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/session", "", map[string]string{"idToken": adminToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("exchange = %d %s", rec.Code, rec.Body.String())
	}
	payload := decode(t, rec)
	token, _ := payload["token"].(string)
	if !auth.IsSessionToken(token) {
		t.Fatalf("token = %q, want a session token", token)
	}
	if payload["role"] != "admin" || payload["isAdmin"] != true {
		t.Fatalf("payload = %v", payload)
	}

	rec = ts.do(t, http.MethodGet, "/api/session", token, nil)
	if got := decode(t, rec); got["authenticated"] != true || got["userName"] != "Admin" {
		t.Fatalf("session = %v", got)
	}

	rec = ts.do(t, http.MethodPost, "/api/session/logout", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout = %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/session", token, nil)
	if got := decode(t, rec); got["authenticated"] != false {
		t.Fatalf("session after logout = %v", got)
	}
	rec = ts.do(t, http.MethodGet, "/api/service/sheets", token, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token status = %d", rec.Code)
	}
}

func TestSessionExchangeRejectsBadIDToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/session", "", map[string]string{"idToken": "bogus"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLegacyBearerHeader(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/service/sheets", nil)
	req.Header.Set("Bearer", "firebase "+memberToken)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListSheetsFiltersSigneesAndSkipsMalformed(t *testing.T) {
	ts := newTestServer(t)

	var body struct {
		Sheets []signup.Sheet `json:"sheets"`
	}

	rec := ts.do(t, http.MethodGet, "/api/service/sheets", memberToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Sheets) != 1 || body.Sheets[0].SheetTitle != testSheet {
		t.Fatalf("sheets = %+v, want only the upcoming well-formed sheet", body.Sheets)
	}
	if len(body.Sheets[0].Signees) != 0 {
		t.Fatalf("member sees signees %+v", body.Sheets[0].Signees)
	}

	rec = ts.do(t, http.MethodGet, "/api/service/sheets", otherToken, nil)
	body.Sheets = nil
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Sheets) != 1 || len(body.Sheets[0].Signees) != 1 {
		t.Fatalf("owner sheets = %+v, want own signee", body.Sheets)
	}

	rec = ts.do(t, http.MethodGet, "/api/service/sheets?tag=choir", memberToken, nil)
	body.Sheets = nil
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Sheets) != 0 {
		t.Fatalf("tag filter kept %+v", body.Sheets)
	}
}

func TestDetailedSheet(t *testing.T) {
	ts := newTestServer(t)

	for _, query := range []string{"", "?all=true"} {
		rec := ts.do(t, http.MethodGet, sheetPath(testDocument, testSheet)+query, memberToken, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("member %q status = %d: %s", query, rec.Code, rec.Body.String())
		}
		var own signup.Sheet
		if err := json.Unmarshal(rec.Body.Bytes(), &own); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(own.Items) != 1 || len(own.Signees) != 0 {
			t.Fatalf("member %q sheet = %+v, want no foreign signees", query, own)
		}
	}

	rec := ts.do(t, http.MethodGet, sheetPath(testDocument, testSheet)+"?all=true", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d: %s", rec.Code, rec.Body.String())
	}
	var sheet signup.Sheet
	if err := json.Unmarshal(rec.Body.Bytes(), &sheet); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sheet.Title != "Spring cleaning" || len(sheet.Signees) != 1 || len(sheet.Items) != 1 {
		t.Fatalf("sheet = %+v", sheet)
	}

	rec = ts.do(t, http.MethodGet, sheetPath(testDocument, "Service-2099-02-01"), memberToken, nil)
	if rec.Code != http.StatusNotFound || decode(t, rec)["code"] != "SHEET_NOT_FOUND" {
		t.Fatalf("malformed sheet = %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet, sheetPath("missing-doc", testSheet), memberToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing document = %d %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitSignups(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, sheetPath(testDocument, testSheet, "signups"), memberToken, map[string]any{
		"items": []map[string]any{{"row": 7, "itemCount": 2}, {"row": 8, "itemCount": 1}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Results []signup.RowResult `json:"results"`
		Applied int                `json:"applied"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Applied != 1 {
		t.Fatalf("applied = %d, want 1: %+v", body.Applied, body.Results)
	}
	outcomes := map[int]signup.Outcome{}
	for _, r := range body.Results {
		outcomes[r.Row] = r.Outcome
	}
	if outcomes[7] != signup.OutcomeApplied || outcomes[8] != signup.OutcomeMoved {
		t.Fatalf("outcomes = %v", outcomes)
	}

	rows := ts.store.Rows(testDocument, testSheet)
	if rows[6][3] != "1" {
		t.Fatalf("mops count = %q, want 1", rows[6][3])
	}
	last := rows[len(rows)-1]
	if last[1] != "Mops" || last[3] != "2" || last[6] != "member@example.com" {
		t.Fatalf("signee row = %v", last)
	}
	if len(ts.notifier.sent) != 1 || ts.notifier.sent[0].template != "ServiceSignupConfirmation" {
		t.Fatalf("notifications = %+v", ts.notifier.sent)
	}

	rec = ts.do(t, http.MethodGet, "/api/service/mine", memberToken, nil)
	var mine struct {
		Sheets []signup.Sheet `json:"sheets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &mine); err != nil {
		t.Fatalf("decode mine: %v", err)
	}
	if len(mine.Sheets) != 1 || len(mine.Sheets[0].Signees) != 1 {
		t.Fatalf("mine = %+v", mine.Sheets)
	}
}

func TestSubmitSignupsValidation(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, sheetPath(testDocument, testSheet, "signups"), strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+memberToken)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json status = %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, sheetPath(testDocument, testSheet, "signups"), memberToken, map[string]any{"items": []any{}})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty items status = %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/unknown/sheets", memberToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown domain status = %d", rec.Code)
	}
}

func TestExportIsAdminOnly(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/service/export", memberToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member export = %d, want 403", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/service/export?format=csv", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin export = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "service-signups-") {
		t.Fatalf("Content-Disposition = %q", rec.Header().Get("Content-Disposition"))
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "date,location,title") || !strings.Contains(lines[1], "other@example.com") {
		t.Fatalf("csv = %q", rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet, "/api/service/export?format=pdf", adminToken, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("pdf export = %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/service/export?archive=true", adminToken, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("archive without minio = %d", rec.Code)
	}
}

func TestNotifications(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/notifications", memberToken, map[string]any{"channel": "sms", "to": []string{"555"}, "body": "hi"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member notify = %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/notifications", adminToken, map[string]any{"channel": "sms", "to": []string{"555"}, "body": "hi"})
	if rec.Code != http.StatusOK {
		t.Fatalf("sms = %d: %s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodPost, "/api/notifications", adminToken, map[string]any{"channel": "email", "to": []string{"a@example.com"}, "subject": "S", "body": "B"})
	if rec.Code != http.StatusOK {
		t.Fatalf("email = %d: %s", rec.Code, rec.Body.String())
	}
	if len(ts.notifier.sent) != 2 || ts.notifier.sent[0].channel != "sms" || ts.notifier.sent[1].subject != "S" {
		t.Fatalf("sent = %+v", ts.notifier.sent)
	}

	for _, tc := range []struct {
		name string
		body map[string]any
		err  error
		want int
	}{
		{name: "unknown channel", body: map[string]any{"channel": "fax", "to": []string{"x"}, "body": "b"}, want: http.StatusUnprocessableEntity},
		{name: "sms without body", body: map[string]any{"channel": "sms", "to": []string{"x"}}, want: http.StatusUnprocessableEntity},
		{name: "email without subject", body: map[string]any{"channel": "email", "to": []string{"x"}, "body": "b"}, want: http.StatusUnprocessableEntity},
		{name: "no recipients", body: map[string]any{"channel": "sms", "body": "b"}, err: notify.ErrNoRecipients, want: http.StatusUnprocessableEntity},
		{name: "channel down", body: map[string]any{"channel": "sms", "to": []string{"x"}, "body": "b"}, err: notify.ErrChannelUnavailable, want: http.StatusServiceUnavailable},
		{name: "provider failure", body: map[string]any{"channel": "sms", "to": []string{"x"}, "body": "b"}, err: errors.New("twilio down"), want: http.StatusBadGateway},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ts.notifier.err = tc.err
			rec := ts.do(t, http.MethodPost, "/api/notifications", adminToken, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestOptionalServicesDegrade(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/registrations?q=smith", memberToken, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"registrations":[]`) {
		t.Fatalf("registrations = %d %s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodPost, "/api/registrations", adminToken, map[string]any{"registrations": [][]string{{"", "x"}}})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("save registrations = %d", rec.Code)
	}
	rec = ts.do(t, http.MethodPost, "/api/registrations", memberToken, map[string]any{"registrations": [][]string{{"", "x"}}})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member save registrations = %d", rec.Code)
	}
	rec = ts.do(t, http.MethodGet, "/api/birthday/events", memberToken, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"events":[]`) {
		t.Fatalf("birthday events = %d %s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodPost, "/api/birthday/events", memberToken, map[string]any{"date": "2099-03-01"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("host birthday = %d", rec.Code)
	}

	bare := NewHTTPServer(New(Options{
		Signups:  signup.NewService(store.NewMemoryStore(), nil, time.UTC),
		Verifier: fakeVerifier{identities: map[string]auth.Identity{memberToken: {UID: "uid-member", Email: "member@example.com"}}},
	}), nil).Handler()
	req := httptest.NewRequest(http.MethodPost, "/api/profile/verification-code", strings.NewReader(`{"phoneNumber":"+14085550100","recaptchaToken":"c"}`))
	req.Header.Set("Authorization", "Bearer "+memberToken)
	rec = httptest.NewRecorder()
	bare.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable || decode(t, rec)["code"] != "PHONE_VERIFICATION_UNAVAILABLE" {
		t.Fatalf("phone verification = %d %s", rec.Code, rec.Body.String())
	}
}

func TestPhoneVerification(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/session", "", map[string]string{"idToken": memberToken})
	oldToken, _ := decode(t, rec)["token"].(string)

	rec = ts.do(t, http.MethodPost, "/api/profile/verification-code", oldToken, map[string]string{"phoneNumber": "555", "recaptchaToken": "c"})
	if rec.Code != http.StatusUnprocessableEntity || decode(t, rec)["code"] != "VALIDATION_ERROR" {
		t.Fatalf("bad number = %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/api/profile/verification-code", oldToken, map[string]string{"phoneNumber": "+14085550100", "recaptchaToken": "c"})
	if rec.Code != http.StatusOK || decode(t, rec)["verificationToken"] != "session-info" {
		t.Fatalf("send code = %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/api/profile/phone", oldToken, map[string]string{"verificationToken": "session-info", "verificationCode": "123456"})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify = %d %s", rec.Code, rec.Body.String())
	}
	payload := decode(t, rec)
	newToken, _ := payload["token"].(string)
	if payload["phoneNumber"] != "+14085550100" || newToken == "" || newToken == oldToken {
		t.Fatalf("verify payload = %v", payload)
	}
	if ts.phones.setUID != "uid-member" {
		t.Fatalf("account updated for %q", ts.phones.setUID)
	}

	if rec = ts.do(t, http.MethodGet, "/api/service/sheets", oldToken, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("replaced token status = %d", rec.Code)
	}
	rec = ts.do(t, http.MethodGet, "/api/session", newToken, nil)
	if got := decode(t, rec); got["phoneNumber"] != "+14085550100" {
		t.Fatalf("renewed session = %v", got)
	}

	rec = ts.do(t, http.MethodPost, "/api/profile/phone", memberToken, map[string]string{"verificationToken": "session-info", "verificationCode": "123456"})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify with id token = %d %s", rec.Code, rec.Body.String())
	}
	if _, ok := decode(t, rec)["token"]; ok {
		t.Fatal("id token caller should not get a session token")
	}

	ts.phones.err = auth.ErrCodeRejected
	rec = ts.do(t, http.MethodPost, "/api/profile/phone", newToken, map[string]string{"verificationToken": "session-info", "verificationCode": "000000"})
	if rec.Code != http.StatusUnprocessableEntity || decode(t, rec)["code"] != "CODE_REJECTED" {
		t.Fatalf("rejected code = %d %s", rec.Code, rec.Body.String())
	}
}

func TestMapError(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want int
		code string
	}{
		{name: "domain", err: domainError(http.StatusTeapot, "TEA", "tea", nil), want: http.StatusTeapot, code: "TEA"},
		{name: "malformed", err: signup.ErrMalformedSheet, want: http.StatusNotFound, code: "SHEET_NOT_FOUND"},
		{name: "upstream", err: &store.UpstreamError{Op: "read", Err: errors.New("boom")}, want: http.StatusBadGateway, code: "UPSTREAM_UNAVAILABLE"},
		{name: "expired", err: auth.ErrExpiredToken, want: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "format", err: export.ErrUnsupportedFormat, want: http.StatusUnprocessableEntity, code: "VALIDATION_ERROR"},
		{name: "phone", err: auth.ErrInvalidPhone, want: http.StatusUnprocessableEntity, code: "VALIDATION_ERROR"},
		{name: "code rejected", err: auth.ErrCodeRejected, want: http.StatusUnprocessableEntity, code: "CODE_REJECTED"},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError, code: "SERVER_ERROR"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			status, code, _, _ := mapError(tc.err)
			if status != tc.want || code != tc.code {
				t.Fatalf("mapError() = %d %s, want %d %s", status, code, tc.want, tc.code)
			}
		})
	}
}

func TestSplitPathUnescapesSegments(t *testing.T) {
	parts, err := splitPath("/api/service/sheets/doc/Seva%2F2099-01-05")
	if err != nil {
		t.Fatalf("splitPath() error = %v", err)
	}
	if len(parts) != 5 || parts[4] != "Seva/2099-01-05" {
		t.Fatalf("parts = %q", parts)
	}
}
