package zoomclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/wolfman30/telehealth-provisioner/pkg/logging"
)

const (
	defaultBaseURL  = "https://api.zoom.us/v2"
	defaultTokenURL = "https://zoom.us/oauth/token"
	defaultUserID   = "me"
	defaultTimeout  = 10 * time.Second
)

var tracer = otel.Tracer("github.com/wolfman30/telehealth-provisioner/internal/zoomclient")

// Config holds configuration for the Zoom server-to-server OAuth client.
type Config struct {
	BaseURL      string // e.g. "https://api.zoom.us/v2"
	TokenURL     string // e.g. "https://zoom.us/oauth/token"
	AccountID    string
	ClientID     string
	ClientSecret string
	UserID       string // host user; "me" is the app owner
	Timeout      time.Duration
	// RequestsPerSecond throttles outbound calls. Zero disables throttling.
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Logger            *logging.Logger
}

// Client creates scheduled video sessions. The only state it keeps is the cached access token.
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logging.Logger

	missing []string
	tokens  oauth2.TokenSource
}

// New builds a client. Missing credentials are reported on first use, not here.
func New(cfg Config) *Client {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	userID := strings.TrimSpace(cfg.UserID)
	if userID == "" {
		userID = defaultUserID
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	c := &Client{
		baseURL:    baseURL,
		userID:     userID,
		httpClient: httpClient,
		logger:     logger.Component("zoomclient"),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	if strings.TrimSpace(cfg.AccountID) == "" {
		c.missing = append(c.missing, "account_id")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		c.missing = append(c.missing, "client_id")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		c.missing = append(c.missing, "client_secret")
	}
	if len(c.missing) == 0 {
		oauthCfg := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
			EndpointParams: url.Values{
				"grant_type": {"account_credentials"},
				"account_id": {cfg.AccountID},
			},
		}
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		c.tokens = oauth2.ReuseTokenSource(nil, oauthCfg.TokenSource(tokenCtx))
	}
	return c
}

// Authenticate returns a valid access token, fetching a new one only when the cached one expired.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", &ConfigError{Missing: c.missing, Err: ErrMissingCredentials}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tok, err := c.tokens.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return "", &APIError{Endpoint: "token", StatusCode: re.Response.StatusCode, Body: string(re.Body)}
		}
		return "", fmt.Errorf("zoomclient: token request failed: %w", err)
	}
	return tok.AccessToken, nil
}

// CreateSession schedules a meeting that starts at start and lasts durationMinutes.
// Hosts must join first and no registration is required.
func (c *Client) CreateSession(ctx context.Context, topic string, start time.Time, durationMinutes int, passcode string) (*Session, error) {
	ctx, span := tracer.Start(ctx, "zoomclient.CreateSession")
	defer span.End()

	payload := createMeetingRequest{
		Topic:     topic,
		Type:      scheduledMeeting,
		StartTime: start.UTC().Format(time.RFC3339),
		Duration:  durationMinutes,
		Timezone:  "UTC",
		Password:  passcode,
		Settings:  defaultSettings(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("zoomclient: failed to marshal meeting: %w", err)
	}

	endpoint := fmt.Sprintf("%s/users/%s/meetings", c.baseURL, url.PathEscape(c.userID))
	respBody, err := c.do(ctx, http.MethodPost, endpoint, body, http.StatusCreated, http.StatusOK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create session failed")
		return nil, err
	}

	session, err := decodeSession(respBody, start)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("zoomclient: failed to decode response: %w", err)
	}
	span.SetAttributes(attribute.String("zoom.session_id", session.ID))
	c.logger.Debug("zoom session created", "provider_session_id", session.ID, "start_time", session.StartTime)
	return session, nil
}

// GetSession fetches the current state of a meeting.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	ctx, span := tracer.Start(ctx, "zoomclient.GetSession")
	defer span.End()

	if strings.TrimSpace(id) == "" {
		return nil, errors.New("zoomclient: session id is required")
	}
	endpoint := fmt.Sprintf("%s/meetings/%s", c.baseURL, url.PathEscape(id))
	respBody, err := c.do(ctx, http.MethodGet, endpoint, nil, http.StatusOK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get session failed")
		return nil, err
	}
	session, err := decodeSession(respBody, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("zoomclient: failed to decode response: %w", err)
	}
	return session, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, okStatus ...int) ([]byte, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("zoomclient: rate limiter: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("zoomclient: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("zoomclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("zoomclient: failed to read response: %w", err)
	}
	for _, code := range okStatus {
		if resp.StatusCode == code {
			return respBody, nil
		}
	}
	return nil, &APIError{Endpoint: req.URL.Path, StatusCode: resp.StatusCode, Body: string(respBody)}
}
