package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lantelyes/curiosity-engine/internal/auth"
	"github.com/lantelyes/curiosity-engine/internal/earnings"
	"github.com/lantelyes/curiosity-engine/internal/openai"
)

type fakeVendor struct {
	cred        openai.SessionCredential
	credErr     error
	answer      string
	exchangeErr error
	lastOffer   string
	lastKey     string
}

func (f *fakeVendor) CreateSession(context.Context) (openai.SessionCredential, error) {
	return f.cred, f.credErr
}

func (f *fakeVendor) ExchangeSDP(_ context.Context, offer, key string) (string, error) {
	f.lastOffer = offer
	f.lastKey = key
	return f.answer, f.exchangeErr
}

type memLedger struct {
	entries []earnings.Entry
	stats   earnings.Stats
	err     error
}

func (l *memLedger) Record(_ context.Context, e earnings.Entry) error {
	if l.err != nil {
		return l.err
	}
	l.entries = append(l.entries, e)
	return nil
}

func (l *memLedger) Stats(context.Context, string) (earnings.Stats, error) {
	if l.err != nil {
		return earnings.Stats{}, l.err
	}
	return l.stats, nil
}

func newTestServer(t *testing.T) (*Server, *fakeVendor, *memLedger, *auth.Manager) {
	t.Helper()
	mgr, err := auth.NewManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}
	vendor := &fakeVendor{
		cred:   openai.SessionCredential{Token: "ek_abc", ExpiresAt: 1234567890},
		answer: "v=0 answer",
	}
	ledger := &memLedger{stats: earnings.Stats{Total: 12.5, WeekData: earnings.EmptyWeek()}}

	srv, err := New(Config{Auth: mgr, Realtime: vendor, Ledger: ledger})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv, vendor, ledger, mgr
}

func authedRequest(t *testing.T, mgr *auth.Manager, method, target string, body string) *http.Request {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	token, err := mgr.Issue("u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	return req
}

func TestHealthzIsPublic(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestLogin_SetsCookieAndRedirects(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	form := "username=alice&from=%2Fdashboard"
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/dashboard" {
		t.Errorf("Location = %q, want /dashboard", loc)
	}

	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("expected session cookie")
	}
	if !sessionCookie.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
}

func TestLogin_RequiresUsername(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"  "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestLogin_OffSiteRedirectRejected(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	form := "username=alice&from=https%3A%2F%2Fevil.example"
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want /", loc)
	}
}

func TestTopics_RequiresAuth(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/topics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestTopics_ReturnsCatalog(t *testing.T) {
	srv, _, _, mgr := newTestServer(t)

	req := authedRequest(t, mgr, http.MethodGet, "/api/topics", "")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var topics []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &topics); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(topics) != 6 {
		t.Errorf("catalog size = %d, want 6", len(topics))
	}
}

func TestRealtimeSession_MintsCredential(t *testing.T) {
	srv, _, _, mgr := newTestServer(t)

	req := authedRequest(t, mgr, http.MethodPost, "/api/realtime/session", "")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token     string `json:"token"`
		ExpiresAt int64  `json:"expires_at"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token != "ek_abc" {
		t.Errorf("token = %q, want ek_abc", resp.Token)
	}
	if resp.ExpiresAt != 1234567890 {
		t.Errorf("expires_at = %d, want 1234567890", resp.ExpiresAt)
	}
}

func TestRealtimeSession_VendorFailure(t *testing.T) {
	srv, vendor, _, mgr := newTestServer(t)
	vendor.credErr = errors.New("vendor down")

	req := authedRequest(t, mgr, http.MethodPost, "/api/realtime/session", "")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestWebRTCExchange_ProxiesOfferAndAnswer(t *testing.T) {
	srv, vendor, _, mgr := newTestServer(t)

	body := `{"sdp":"v=0 offer","ephemeralKey":"ek_abc"}`
	req := authedRequest(t, mgr, http.MethodPost, "/api/realtime/webrtc", body)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Answer struct {
			Type string `json:"type"`
			SDP  string `json:"sdp"`
		} `json:"answer"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer.Type != "answer" || resp.Answer.SDP != "v=0 answer" {
		t.Errorf("answer = %+v", resp.Answer)
	}
	if vendor.lastOffer != "v=0 offer" || vendor.lastKey != "ek_abc" {
		t.Errorf("vendor got offer=%q key=%q", vendor.lastOffer, vendor.lastKey)
	}
}

func TestWebRTCExchange_MissingFields(t *testing.T) {
	srv, _, _, mgr := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"missing key", `{"sdp":"v=0 offer"}`},
		{"missing sdp", `{"ephemeralKey":"ek_abc"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := authedRequest(t, mgr, http.MethodPost, "/api/realtime/webrtc", tc.body)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestRecordEarnings(t *testing.T) {
	srv, _, ledger, mgr := newTestServer(t)

	body := `{"topicId":"travel","amount":2.40,"durationSeconds":300}`
	req := authedRequest(t, mgr, http.MethodPost, "/api/earnings", body)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if len(ledger.entries) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(ledger.entries))
	}
	e := ledger.entries[0]
	if e.UserID != "u1" || e.TopicID != "travel" || e.Amount != 2.40 || e.DurationSeconds != 300 {
		t.Errorf("entry = %+v", e)
	}
	if e.TopicName != "Travel" {
		t.Errorf("topic name = %q, want Travel", e.TopicName)
	}
}

func TestRecordEarnings_Invalid(t *testing.T) {
	srv, _, _, mgr := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"unknown topic", `{"topicId":"nope","amount":1,"durationSeconds":60}`},
		{"zero amount", `{"topicId":"travel","amount":0,"durationSeconds":60}`},
		{"negative duration", `{"topicId":"travel","amount":1,"durationSeconds":-5}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := authedRequest(t, mgr, http.MethodPost, "/api/earnings", tc.body)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestEarningsStats(t *testing.T) {
	srv, _, _, mgr := newTestServer(t)

	req := authedRequest(t, mgr, http.MethodGet, "/api/earnings/stats", "")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var stats earnings.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Total != 12.5 {
		t.Errorf("total = %v, want 12.5", stats.Total)
	}
	if len(stats.WeekData) != 7 {
		t.Errorf("week data length = %d, want 7", len(stats.WeekData))
	}
}

func TestLogout_ClearsCookie(t *testing.T) {
	srv, _, _, mgr := newTestServer(t)

	req := authedRequest(t, mgr, http.MethodPost, "/logout", "")
	req.Header.Del(echo.HeaderContentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("expected session cookie to be cleared")
	}
}
