package sendgrid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/haventory/haventory-backend/internal/platform/ctxutil"
	"github.com/haventory/haventory-backend/internal/platform/envutil"
	"github.com/haventory/haventory-backend/internal/platform/httpx"
	"github.com/haventory/haventory-backend/internal/platform/logger"
)

// Client sends transactional mail. The review notifier uses it to tell a
// user when a document is waiting for confirmation.
type Client interface {
	Send(ctx context.Context, req SendEmailRequest) error
}

type Config struct {
	APIKey           string
	BaseURL          string
	DefaultFromEmail string
	DefaultFromName  string
	Timeout          time.Duration
	MaxRetries       int
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:           strings.TrimSpace(os.Getenv("SENDGRID_API_KEY")),
		BaseURL:          strings.TrimSpace(os.Getenv("SENDGRID_BASE_URL")),
		DefaultFromEmail: strings.TrimSpace(os.Getenv("SENDGRID_FROM_EMAIL")),
		DefaultFromName:  strings.TrimSpace(os.Getenv("SENDGRID_FROM_NAME")),
		Timeout:          envutil.Seconds("SENDGRID_TIMEOUT_SECONDS", 30),
		MaxRetries:       envutil.Int("SENDGRID_MAX_RETRIES", 4),
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing SENDGRID_API_KEY")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.sendgrid.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &client{
		log:        log.With("client", "SendgridClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

type SendEmailRequest struct {
	ToEmail  string
	ToName   string
	Subject  string
	TextBody string
	HTMLBody string
}

type sgHTTPError struct {
	StatusCode int
	Body       string
}

func (e *sgHTTPError) Error() string {
	return fmt.Sprintf("sendgrid http %d: %s", e.StatusCode, e.Body)
}

func (e *sgHTTPError) HTTPStatusCode() int { return e.StatusCode }

func (c *client) Send(ctx context.Context, req SendEmailRequest) error {
	if strings.TrimSpace(req.ToEmail) == "" {
		return fmt.Errorf("recipient email required")
	}
	if strings.TrimSpace(req.Subject) == "" {
		return fmt.Errorf("subject required")
	}

	content := make([]map[string]string, 0, 2)
	if strings.TrimSpace(req.TextBody) != "" {
		content = append(content, map[string]string{"type": "text/plain", "value": req.TextBody})
	}
	if strings.TrimSpace(req.HTMLBody) != "" {
		content = append(content, map[string]string{"type": "text/html", "value": req.HTMLBody})
	}
	if len(content) == 0 {
		return fmt.Errorf("email body required")
	}

	payload := map[string]any{
		"personalizations": []map[string]any{
			{"to": []map[string]string{{"email": req.ToEmail, "name": req.ToName}}},
		},
		"from":    map[string]string{"email": c.cfg.DefaultFromEmail, "name": c.cfg.DefaultFromName},
		"subject": req.Subject,
		"content": content,
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			sleep := httpx.Jitter(httpx.BackoffDuration(500*time.Millisecond, 8*time.Second, attempt))
			select {
			case <-time.After(sleep):
			case <-ctxutil.Default(ctx).Done():
				return ctx.Err()
			}
		}

		lastErr = c.sendOnce(ctx, payload)
		if lastErr == nil {
			return nil
		}
		if !httpx.IsRetryableError(lastErr) {
			return lastErr
		}
		c.log.Warn("Sendgrid send retrying", "attempt", attempt+1, "error", lastErr)
	}
	return lastErr
}

func (c *client) sendOnce(ctx context.Context, payload map[string]any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodPost, c.cfg.BaseURL+"/v3/mail/send", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &sgHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
}
