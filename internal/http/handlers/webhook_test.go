package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/haventory/haventory-backend/internal/platform/apperr"
	"github.com/haventory/haventory-backend/internal/platform/logger"
)

type recordingIngest struct {
	calls      int
	lastBody   []byte
	lastHeader string
	err        error
}

func (r *recordingIngest) HandleWebhook(ctx context.Context, rawBody []byte, signatureHeader string) error {
	r.calls++
	r.lastBody = rawBody
	r.lastHeader = signatureHeader
	return r.err
}

func webhookRouter(t *testing.T, ingest *recordingIngest) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	r := gin.New()
	r.POST("/webhooks/email", NewWebhookHandler(log, ingest).ReceiveEmail)
	return r
}

func postWebhook(r *gin.Engine, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/email", bytes.NewBufferString(body))
	if signature != "" {
		req.Header.Set("Webhook-Signature", signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestReceiveEmailAcksValidDelivery(t *testing.T) {
	ingest := &recordingIngest{}
	r := webhookRouter(t, ingest)

	w := postWebhook(r, `{"type":"email.received"}`, "v1,123 abcd")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"received":true`) {
		t.Fatalf("body = %s", w.Body.String())
	}
	if ingest.calls != 1 || string(ingest.lastBody) != `{"type":"email.received"}` || ingest.lastHeader != "v1,123 abcd" {
		t.Fatalf("ingest saw calls=%d body=%q header=%q", ingest.calls, ingest.lastBody, ingest.lastHeader)
	}
}

// A forged signature is dropped inside the service, and the HTTP layer
// still acks so the provider does not retry forever.
func TestReceiveEmailAcksForgedSignature(t *testing.T) {
	ingest := &recordingIngest{err: apperr.Authorization("webhook_signature_invalid", "bad signature")}
	r := webhookRouter(t, ingest)

	w := postWebhook(r, `{"type":"email.received"}`, "v1,123 forged")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even on signature failure", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"received":true`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestReceiveEmailAcksMalformedPayload(t *testing.T) {
	ingest := &recordingIngest{err: apperr.Validation("webhook_payload_invalid", "not json")}
	r := webhookRouter(t, ingest)

	if w := postWebhook(r, "{garbage", "v1,123 abcd"); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestReceiveEmailAcksMissingSignatureHeader(t *testing.T) {
	ingest := &recordingIngest{err: apperr.Authorization("webhook_signature_invalid", "empty header")}
	r := webhookRouter(t, ingest)

	w := postWebhook(r, `{"type":"email.received"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ingest.lastHeader != "" {
		t.Fatalf("header = %q", ingest.lastHeader)
	}
}
