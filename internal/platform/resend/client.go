package resend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/haventory/haventory-backend/internal/platform/apperr"
	"github.com/haventory/haventory-backend/internal/platform/ctxutil"
	"github.com/haventory/haventory-backend/internal/platform/envutil"
	"github.com/haventory/haventory-backend/internal/platform/logger"
)

// WebhookPayload is the inbound-email event body posted to our webhook.
type WebhookPayload struct {
	Type string       `json:"type"`
	Data WebhookEmail `json:"data"`
}

type WebhookEmail struct {
	EmailID     string       `json:"email_id"`
	From        string       `json:"from"`
	To          []string     `json:"to"`
	Subject     string       `json:"subject"`
	Attachments []Attachment `json:"attachments"`
}

type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	// Exactly one of the two is populated per delivery.
	Content     string `json:"content,omitempty"` // base64
	DownloadURL string `json:"download_url,omitempty"`
}

// EmailBody is the full message content fetched after the webhook fires;
// the webhook itself carries only metadata and attachment descriptors.
type EmailBody struct {
	HTML string `json:"html"`
	Text string `json:"text"`
}

// Client talks to the inbound-email provider API.
type Client interface {
	GetEmailBody(ctx context.Context, emailID string) (*EmailBody, error)
	DownloadAttachment(ctx context.Context, url string) ([]byte, error)
}

type Config struct {
	APIKey        string
	BaseURL       string
	WebhookSecret string
	Timeout       time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:        strings.TrimSpace(os.Getenv("RESEND_API_KEY")),
		BaseURL:       strings.TrimSpace(os.Getenv("RESEND_BASE_URL")),
		WebhookSecret: strings.TrimSpace(os.Getenv("RESEND_WEBHOOK_SECRET")),
		Timeout:       envutil.Seconds("RESEND_TIMEOUT_SECONDS", 30),
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
		return nil, fmt.Errorf("missing RESEND_API_KEY")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.resend.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &client{
		log:        log.With("client", "ResendClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

func (c *client) GetEmailBody(ctx context.Context, emailID string) (*EmailBody, error) {
	emailID = strings.TrimSpace(emailID)
	if emailID == "" {
		return nil, apperr.Validation("email_id_required", "email id required")
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, c.cfg.BaseURL+"/emails/"+emailID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.ExternalService("email_fetch_failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperr.NotFound("email_missing", "email %s not found", emailID)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apperr.ExternalService("email_fetch_failed",
			fmt.Errorf("provider http %d: %s", resp.StatusCode, string(raw)))
	}

	var body EmailBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperr.ExternalService("email_fetch_failed", fmt.Errorf("decode email body: %w", err))
	}
	return &body, nil
}

func (c *client) DownloadAttachment(ctx context.Context, url string) ([]byte, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, apperr.Validation("attachment_url_required", "attachment url required")
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.ExternalService("attachment_fetch_failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apperr.ExternalService("attachment_fetch_failed",
			fmt.Errorf("provider http %d: %s", resp.StatusCode, string(raw)))
	}
	return io.ReadAll(resp.Body)
}
