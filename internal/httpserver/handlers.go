package httpserver

import (
	"fmt"
	"html"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lantelyes/curiosity-engine/internal/auth"
	"github.com/lantelyes/curiosity-engine/internal/earnings"
	"github.com/lantelyes/curiosity-engine/internal/topics"
)

const loginPage = `<!doctype html>
<html>
<head><title>Curiosity Engine</title></head>
<body>
<form method="post" action="/login">
<input type="hidden" name="from" value="%s">
<label>Name <input name="username" autofocus></label>
<button type="submit">Start earning</button>
</form>
</body>
</html>`

func (s *Server) handleLoginPage(c echo.Context) error {
	from := sanitizeFrom(c.QueryParam("from"))
	return c.HTML(http.StatusOK, fmt.Sprintf(loginPage, html.EscapeString(from)))
}

type loginRequest struct {
	Username string `json:"username" form:"username"`
	From     string `json:"from" form:"from"`
}

func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid login request")
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username is required")
	}

	token, err := s.auth.Issue(req.Username)
	if err != nil {
		log.Printf("login: issue session: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create session")
	}

	c.SetCookie(&http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.auth.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	if wantsJSON(c) {
		return c.JSON(http.StatusOK, map[string]string{"userId": req.Username})
	}
	return c.Redirect(http.StatusFound, sanitizeFrom(req.From))
}

func (s *Server) handleLogout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	if wantsJSON(c) {
		return c.NoContent(http.StatusNoContent)
	}
	return c.Redirect(http.StatusFound, "/login")
}

func (s *Server) handleTopics(c echo.Context) error {
	return c.JSON(http.StatusOK, topics.All())
}

// handleRealtimeSession mints a short-lived vendor credential the browser
// uses to open its own realtime connection. The long-lived API key never
// leaves the server.
func (s *Server) handleRealtimeSession(c echo.Context) error {
	cred, err := s.realtime.CreateSession(c.Request().Context())
	if err != nil {
		log.Printf("realtime session: %v", err)
		return echo.NewHTTPError(http.StatusBadGateway, "could not create realtime session")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"token":      cred.Token,
		"expires_at": cred.ExpiresAt,
	})
}

type exchangeRequest struct {
	SDP          string `json:"sdp"`
	EphemeralKey string `json:"ephemeralKey"`
}

// handleWebRTCExchange proxies the browser's SDP offer to the vendor and
// returns the answer wrapped as a session description.
func (s *Server) handleWebRTCExchange(c echo.Context) error {
	var req exchangeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid exchange payload")
	}
	if req.EphemeralKey == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing ephemeral credential")
	}
	if req.SDP == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing SDP offer")
	}

	answer, err := s.realtime.ExchangeSDP(c.Request().Context(), req.SDP, req.EphemeralKey)
	if err != nil {
		log.Printf("sdp exchange: %v", err)
		return echo.NewHTTPError(http.StatusBadGateway, "signaling failed")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"answer": map[string]string{"type": "answer", "sdp": answer},
	})
}

type recordRequest struct {
	TopicID         string  `json:"topicId"`
	Amount          float64 `json:"amount"`
	DurationSeconds int     `json:"durationSeconds"`
}

func (s *Server) handleRecordEarnings(c echo.Context) error {
	var req recordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid earnings payload")
	}

	topic, ok := topics.ByID(req.TopicID)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown topic")
	}
	if req.Amount <= 0 || req.DurationSeconds <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "amount and duration must be positive")
	}

	entry := earnings.Entry{
		UserID:          auth.UserID(c),
		TopicID:         topic.ID,
		TopicName:       topic.Name,
		Amount:          req.Amount,
		DurationSeconds: req.DurationSeconds,
	}
	if err := s.ledger.Record(c.Request().Context(), entry); err != nil {
		log.Printf("record earnings: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not record earnings")
	}
	return c.JSON(http.StatusCreated, entry)
}

func (s *Server) handleEarningsStats(c echo.Context) error {
	stats, err := s.ledger.Stats(c.Request().Context(), auth.UserID(c))
	if err != nil {
		log.Printf("earnings stats: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not load earnings")
	}
	return c.JSON(http.StatusOK, stats)
}

// sanitizeFrom keeps post-login redirects on-site.
func sanitizeFrom(from string) string {
	if from == "" || !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") {
		return "/"
	}
	return from
}

func wantsJSON(c echo.Context) bool {
	ct := c.Request().Header.Get(echo.HeaderContentType)
	return strings.Contains(ct, echo.MIMEApplicationJSON)
}
