package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RealtimeClient talks to the OpenAI realtime voice API: ephemeral session
// credentials and SDP offer/answer exchange.
type RealtimeClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
	BaseURL    string
}

// SessionCredential is a short-lived, single-use token for one realtime session.
type SessionCredential struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

type createSessionRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice"`
}

type createSessionResponse struct {
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
	SessionToken string `json:"session_token"`
	Token        string `json:"token"`
	ExpiresAt    int64  `json:"expires_at"`
}

func NewRealtimeClient(apiKey, model, baseURL string) *RealtimeClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &RealtimeClient{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// CreateSession requests an ephemeral credential for one realtime session.
func (c *RealtimeClient) CreateSession(ctx context.Context) (SessionCredential, error) {
	if c.APIKey == "" {
		return SessionCredential{}, fmt.Errorf("openai api key missing")
	}
	endpoint := c.BaseURL + "/v1/realtime/sessions"

	reqBody, _ := json.Marshal(createSessionRequest{Model: c.Model, Voice: "alloy"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return SessionCredential{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return SessionCredential{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return SessionCredential{}, fmt.Errorf("openai session error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var sr createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return SessionCredential{}, err
	}
	cred := SessionCredential{Token: sr.ClientSecret.Value, ExpiresAt: sr.ClientSecret.ExpiresAt}
	// Older responses carried the token at the top level.
	if cred.Token == "" {
		cred.Token = sr.SessionToken
	}
	if cred.Token == "" {
		cred.Token = sr.Token
	}
	if cred.ExpiresAt == 0 {
		cred.ExpiresAt = sr.ExpiresAt
	}
	if cred.Token == "" {
		return SessionCredential{}, fmt.Errorf("openai session response missing token")
	}
	return cred, nil
}

// ExchangeSDP posts a local SDP offer authenticated by an ephemeral credential
// and returns the remote answer SDP. Non-2xx upstream responses propagate as
// errors.
func (c *RealtimeClient) ExchangeSDP(ctx context.Context, offerSDP, ephemeralKey string) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/realtime?model=%s", c.BaseURL, c.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offerSDP))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+ephemeralKey)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai sdp exchange error: status=%d body=%s", resp.StatusCode, string(body))
	}
	return string(body), nil
}

// WebSocketURL returns the realtime endpoint for the websocket transport.
func (c *RealtimeClient) WebSocketURL() string {
	u := strings.Replace(c.BaseURL, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return fmt.Sprintf("%s/v1/realtime?model=%s", u, c.Model)
}
