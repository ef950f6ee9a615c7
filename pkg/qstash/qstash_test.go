package qstash

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/tanpawarit/bingwa/domain/order"
)

var testNow = time.Date(2026, 10, 15, 7, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	if cfg.URL == "" {
		cfg.URL = "https://qstash.upstash.io"
	}
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	client.now = func() time.Time { return testNow }
	return client
}

func sign(t *testing.T, key string, body []byte, mutate func(*signatureClaims)) string {
	t.Helper()
	sum := sha256.Sum256(body)
	claims := &signatureClaims{
		Body: base64.URLEncoding.EncodeToString(sum[:]),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    signatureIssuer,
			Subject:   "https://bingwa.example/v1/webhooks/fulfillment",
			IssuedAt:  jwt.NewNumericDate(testNow.Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(testNow.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(testNow.Add(5 * time.Minute)),
		},
	}
	if mutate != nil {
		mutate(claims)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestVerify(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, Config{
		Token:             "tok",
		CurrentSigningKey: "current",
		NextSigningKey:    "next",
		WebhookURL:        "https://bingwa.example/v1/webhooks/fulfillment",
	})
	body := []byte(`{"orderId":"ord_1","status":"in_progress"}`)

	tests := []struct {
		name    string
		token   string
		body    []byte
		wantErr bool
	}{
		{name: "current key", token: sign(t, "current", body, nil), body: body},
		{name: "next key", token: sign(t, "next", body, nil), body: body},
		{name: "unknown key", token: sign(t, "other", body, nil), body: body, wantErr: true},
		{name: "tampered body", token: sign(t, "current", body, nil), body: []byte(`{"orderId":"ord_2"}`), wantErr: true},
		{name: "expired", token: sign(t, "current", body, func(c *signatureClaims) {
			c.ExpiresAt = jwt.NewNumericDate(testNow.Add(-time.Second))
		}), body: body, wantErr: true},
		{name: "wrong issuer", token: sign(t, "current", body, func(c *signatureClaims) {
			c.Issuer = "someone"
		}), body: body, wantErr: true},
		{name: "wrong subject", token: sign(t, "current", body, func(c *signatureClaims) {
			c.Subject = "https://elsewhere.example"
		}), body: body, wantErr: true},
		{name: "missing", token: "", body: body, wantErr: true},
	}

	for _, tt := range tests {
		err := client.Verify(tt.token, tt.body)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("%s: expected ErrInvalidSignature, got %v", tt.name, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: Verify() error = %v", tt.name, err)
		}
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, Config{Token: "tok", CurrentSigningKey: "current"})
	body := []byte(`{}`)
	sum := sha256.Sum256(body)
	claims := &signatureClaims{
		Body: base64.URLEncoding.EncodeToString(sum[:]),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    signatureIssuer,
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("current"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if err := client.Verify(token, body); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestPublish(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth, gotDedup, gotRetries string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotDedup = r.Header.Get("Upstash-Deduplication-Id")
		gotRetries = r.Header.Get("Upstash-Retries")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"messageId":"msg_1"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, Config{URL: srv.URL, Token: "tok", CurrentSigningKey: "k"})
	retries := 3
	out, err := client.Publish(context.Background(), PublishRequest{
		Destination:     "https://hooks.example/orders",
		Body:            []byte(`{"a":1}`),
		DeduplicationID: "dedup-1",
		Retries:         &retries,
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if out.MessageID != "msg_1" {
		t.Fatalf("unexpected message id: %s", out.MessageID)
	}
	if !strings.HasPrefix(gotPath, "/v2/publish/https:") || !strings.HasSuffix(gotPath, "hooks.example/orders") {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotAuth != "Bearer tok" || gotDedup != "dedup-1" || gotRetries != "3" {
		t.Fatalf("unexpected headers: auth=%q dedup=%q retries=%q", gotAuth, gotDedup, gotRetries)
	}
	if string(gotBody) != `{"a":1}` {
		t.Fatalf("unexpected body: %s", gotBody)
	}
}

func TestPublishStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, Config{URL: srv.URL, Token: "bad", CurrentSigningKey: "k"})
	_, err := client.Publish(context.Background(), PublishRequest{Destination: "https://hooks.example", Body: []byte(`{}`)})

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected APIError 401, got %v", err)
	}
}

type recordingPublisher struct {
	reqs []PublishRequest
	err  error
}

func (r *recordingPublisher) Publish(ctx context.Context, req PublishRequest) (PublishResponse, error) {
	r.reqs = append(r.reqs, req)
	return PublishResponse{MessageID: "m"}, r.err
}

func TestOrderEventPublisher(t *testing.T) {
	t.Parallel()

	rec := &recordingPublisher{}
	pub := &OrderEventPublisher{client: rec, destination: "https://hooks.example/orders"}

	evt := order.Event{
		Type:           order.EventStatusChanged,
		OrderID:        "ord_1",
		PreviousStatus: order.StatusPending,
		CurrentStatus:  order.StatusConfirmed,
		OccurredAt:     testNow,
	}
	if err := pub.PublishOrderEvent(context.Background(), evt); err != nil {
		t.Fatalf("PublishOrderEvent() error = %v", err)
	}
	if len(rec.reqs) != 1 {
		t.Fatalf("expected one publish, got %d", len(rec.reqs))
	}

	req := rec.reqs[0]
	if req.Destination != "https://hooks.example/orders" {
		t.Fatalf("unexpected destination: %s", req.Destination)
	}
	if !strings.HasPrefix(req.DeduplicationID, "ord_1-order-status-changed-") {
		t.Fatalf("unexpected dedup id: %s", req.DeduplicationID)
	}

	var decoded map[string]any
	if err := json.Unmarshal(req.Body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded["type"] != order.EventStatusChanged || decoded["currentStatus"] != "confirmed" {
		t.Fatalf("unexpected body: %v", decoded)
	}
}

func TestNewOrderEventPublisherRequiresDestination(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, Config{Token: "tok", CurrentSigningKey: "k"})
	if _, err := NewOrderEventPublisher(client, " "); err == nil {
		t.Fatal("expected error for empty destination")
	}
	if _, err := NewOrderEventPublisher(nil, "https://hooks.example"); err == nil {
		t.Fatal("expected error for nil client")
	}
}
