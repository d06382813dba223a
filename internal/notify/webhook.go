package notify

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aditya/haggle/internal/models"
	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.uber.org/ratelimit"
)

const (
	webhookTypeNotification = "notification"
	webhookTypeHint         = "conversation_hint"
	webhookTokenTTL         = 5 * time.Minute
)

type webhookEnvelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// WebhookClaims are signed into the Authorization header so the receiver
// can check both the sender and the body it was issued for.
type WebhookClaims struct {
	BodySHA256 string `json:"body_sha256"`
	jwt.RegisteredClaims
}

// WebhookNotifier POSTs notifications to a single endpoint. Calls are rate
// limited and go through a circuit breaker, so a dead receiver costs one
// fast failure per call instead of a timeout.
type WebhookNotifier struct {
	endpoint   string
	secret     []byte
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	limiter    ratelimit.Limiter
}

func NewWebhookNotifier(endpoint, secret string, ratePerSecond int, httpClient *http.Client) *WebhookNotifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	limiter := ratelimit.NewUnlimited()
	if ratePerSecond > 0 {
		limiter = ratelimit.New(ratePerSecond)
	}
	return &WebhookNotifier{
		endpoint:   endpoint,
		secret:     []byte(secret),
		httpClient: httpClient,
		cb:         newCircuitBreaker(),
		limiter:    limiter,
	}
}

func (w *WebhookNotifier) Name() string { return "webhook" }

func (w *WebhookNotifier) Notify(ctx context.Context, n models.Notification) error {
	return w.post(ctx, webhookEnvelope{Type: webhookTypeNotification, Data: n})
}

func (w *WebhookNotifier) Hint(ctx context.Context, h models.ConversationHint) error {
	return w.post(ctx, webhookEnvelope{Type: webhookTypeHint, Data: h})
}

func (w *WebhookNotifier) post(ctx context.Context, envelope webhookEnvelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	w.limiter.Take()

	_, err = w.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if len(w.secret) > 0 {
			token, err := w.sign(body)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := w.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("webhook responded with status %d", resp.StatusCode)
		}
		return nil, nil
	})
	return err
}

func (w *WebhookNotifier) sign(body []byte) (string, error) {
	sum := sha256.Sum256(body)
	now := time.Now()
	claims := WebhookClaims{
		BodySHA256: hex.EncodeToString(sum[:]),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "haggle",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(webhookTokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(w.secret)
}

func newCircuitBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "webhook",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				log.Warn("webhook receiver seems down, stop sending notifications")
			}
			if from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen {
				log.Info("checking webhook receiver")
			}
			if from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed {
				log.Info("webhook receiver seems ok, resume sending notifications")
			}
		},
	})
}
