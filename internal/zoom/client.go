package zoom

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/campuswell/wellbeing-api/internal/config"
	"github.com/campuswell/wellbeing-api/internal/model"
	"github.com/campuswell/wellbeing-api/pkg/circuitbreaker"
	"github.com/campuswell/wellbeing-api/pkg/logger"
	"github.com/campuswell/wellbeing-api/pkg/metrics"
)

const (
	tokenCacheKey = "zoom_access_token"
	// Tokens are refreshed five minutes before Zoom expires them.
	tokenExpirySlack = 5 * time.Minute

	requestTimeout = 30 * time.Second
)

// MeetingRequest describes the session to create on the provider.
type MeetingRequest struct {
	Topic     string
	StartTime time.Time
	Duration  int
	Timezone  string
	Agenda    string
}

// Client talks to the Zoom REST API with server-to-server OAuth. Every
// operation degrades gracefully: callers receive a locally synthesized
// fallback meeting instead of an error when the provider is down.
type Client struct {
	cfg     config.ZoomConfig
	http    *http.Client
	tokens  *cache.Cache
	cb      *circuitbreaker.CircuitBreaker
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewClient(cfg config.ZoomConfig, log *logger.Logger, m *metrics.Metrics) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: requestTimeout},
		tokens: cache.New(cache.NoExpiration, 10*time.Minute),
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "zoom-api",
			MaxRequests: 5,
			Interval:    time.Minute,
			Timeout:     time.Minute,
		}),
		logger:  log,
		metrics: m,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if token, ok := c.tokens.Get(tokenCacheKey); ok {
		return token.(string), nil
	}

	form := url.Values{}
	form.Set("grant_type", "account_credentials")
	form.Set("account_id", c.cfg.AccountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.TokenURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}

	basic := base64.StdEncoding.EncodeToString(
		[]byte(c.cfg.ClientID + ":" + c.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token request returned %d: %s", resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	ttl := time.Duration(tr.ExpiresIn)*time.Second - tokenExpirySlack
	if ttl <= 0 {
		ttl = time.Minute
	}
	c.tokens.Set(tokenCacheKey, tr.AccessToken, ttl)

	return tr.AccessToken, nil
}

type meetingResponse struct {
	ID       int64  `json:"id"`
	JoinURL  string `json:"join_url"`
	StartURL string `json:"start_url"`
	Password string `json:"password"`
}

// CreateMeeting provisions a meeting on the provider, or synthesizes a
// fallback when credentials are missing or the API call fails. The
// returned MeetingInfo is always usable.
func (c *Client) CreateMeeting(ctx context.Context, appointmentID string, req *MeetingRequest) *model.MeetingInfo {
	if !c.cfg.Configured() {
		c.logger.Warn("zoom credentials missing, synthesizing fallback meeting")
		return c.fallbackMeeting(appointmentID)
	}

	var info *model.MeetingInfo
	err := c.cb.Execute(func() error {
		created, err := c.createMeeting(ctx, req)
		if err != nil {
			return err
		}
		info = created
		return nil
	})
	if err != nil {
		c.metrics.MeetingAPIRequests.WithLabelValues("create", "error").Inc()
		c.logger.Error(err, "zoom meeting creation failed, using fallback",
			"appointment_id", appointmentID)
		return c.fallbackMeeting(appointmentID)
	}

	c.metrics.MeetingAPIRequests.WithLabelValues("create", "success").Inc()
	return info
}

func (c *Client) createMeeting(ctx context.Context, req *MeetingRequest) (*model.MeetingInfo, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	password := generateMeetingPassword()
	payload := map[string]interface{}{
		"topic":      req.Topic,
		"type":       2,
		"start_time": req.StartTime.UTC().Format("2006-01-02T15:04:05Z"),
		"duration":   req.Duration,
		"timezone":   req.Timezone,
		"agenda":     req.Agenda,
		"password":   password,
		"settings": map[string]interface{}{
			"host_video":        true,
			"participant_video": true,
			"join_before_host":  false,
			"waiting_room":      true,
			"approval_type":     0,
			"audio":             "both",
			"auto_recording":    "none",
			"mute_upon_entry":   true,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal meeting payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/users/%s/meetings", c.cfg.BaseURL, url.PathEscape(c.cfg.UserEmail))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build meeting request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("meeting request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("meeting request returned %d: %s", resp.StatusCode, respBody)
	}

	var mr meetingResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, fmt.Errorf("failed to decode meeting response: %w", err)
	}
	if mr.Password == "" {
		mr.Password = password
	}

	return &model.MeetingInfo{
		MeetLink:      mr.JoinURL,
		HostLink:      mr.StartURL,
		ProviderID:    fmt.Sprintf("%d", mr.ID),
		Password:      mr.Password,
		Platform:      "zoom",
		CreatedMethod: "api",
	}, nil
}

// UpdateMeeting moves an existing provider meeting. Fallback meetings
// have nothing to update and succeed trivially.
func (c *Client) UpdateMeeting(ctx context.Context, providerID string, startTime time.Time, duration int, timezone string) error {
	if model.IsFallbackID(providerID) {
		return nil
	}

	err := c.cb.Execute(func() error {
		token, err := c.accessToken(ctx)
		if err != nil {
			return err
		}

		payload := map[string]interface{}{
			"start_time": startTime.UTC().Format("2006-01-02T15:04:05Z"),
			"duration":   duration,
			"timezone":   timezone,
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal update payload: %w", err)
		}

		endpoint := fmt.Sprintf("%s/meetings/%s", c.cfg.BaseURL, url.PathEscape(providerID))
		req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build update request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("update request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNoContent {
			respBody, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("update request returned %d: %s", resp.StatusCode, respBody)
		}
		return nil
	})

	if err != nil {
		c.metrics.MeetingAPIRequests.WithLabelValues("update", "error").Inc()
		return err
	}
	c.metrics.MeetingAPIRequests.WithLabelValues("update", "success").Inc()
	return nil
}

// CancelMeeting deletes the provider meeting. Fallback meetings succeed
// trivially; a provider failure is reported but must not stop the
// caller's cancellation.
func (c *Client) CancelMeeting(ctx context.Context, providerID string) error {
	if model.IsFallbackID(providerID) {
		return nil
	}

	err := c.cb.Execute(func() error {
		token, err := c.accessToken(ctx)
		if err != nil {
			return err
		}

		endpoint := fmt.Sprintf("%s/meetings/%s", c.cfg.BaseURL, url.PathEscape(providerID))
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to build delete request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("delete request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
			respBody, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("delete request returned %d: %s", resp.StatusCode, respBody)
		}
		return nil
	})

	if err != nil {
		c.metrics.MeetingAPIRequests.WithLabelValues("delete", "error").Inc()
		return err
	}
	c.metrics.MeetingAPIRequests.WithLabelValues("delete", "success").Inc()
	return nil
}

func (c *Client) fallbackMeeting(appointmentID string) *model.MeetingInfo {
	c.metrics.MeetingFallbacks.Inc()
	return FallbackMeeting(appointmentID)
}

// generateMeetingPassword returns a six-digit numeric meeting password.
func generateMeetingPassword() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "123456"
	}
	return fmt.Sprintf("%06d", n.Int64())
}
