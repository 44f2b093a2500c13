package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"otp-gateway/internal/channel"
	"otp-gateway/internal/client"
	"otp-gateway/internal/config"
	"otp-gateway/internal/hashing"
	redisrepo "otp-gateway/internal/repository/redis"
	"otp-gateway/internal/service"
)

type stubChannel struct {
	name     string
	modality channel.Modality
	lastMsg  string
}

func (s *stubChannel) Name() string               { return s.name }
func (s *stubChannel) Modality() channel.Modality { return s.modality }

func (s *stubChannel) Deliver(_ context.Context, _, message string) channel.DeliveryOutcome {
	s.lastMsg = message
	return channel.DeliveryOutcome{Delivered: true}
}

func newTestServer(t *testing.T) (http.Handler, *stubChannel) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	rc := &client.RedisClient{Client: rdb}

	primary := &stubChannel{name: "stub-sms", modality: channel.ModalitySMS}
	secondary := &stubChannel{name: "backup-sms", modality: channel.ModalitySMS}
	registry := channel.NewRegistry()
	registry.Register(primary)
	registry.Register(secondary)

	logger := zap.NewNop()
	svc := service.NewOTPService(
		redisrepo.NewOTPCache(rc),
		redisrepo.NewRateLimitCache(rc),
		hashing.NewHasher(hashing.DefaultParams()),
		registry,
		service.NewEventPublisher(nil, logger),
		config.OTPConfig{
			Digits:      6,
			CodeTTL:     10 * time.Minute,
			MaxAttempts: 3,
			RateLimit:   3,
			RateWindow:  time.Hour,
		},
		logger,
	)

	otpHandler := NewOTPHandler(svc, registry, logger)
	health := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
	return NewRouter(otpHandler, health, false, logger), primary
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp Response
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, resp
}

func TestSendAndVerifyOverHTTP(t *testing.T) {
	router, ch := newTestServer(t)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/otp/send", map[string]string{
		"channel":    "sms",
		"identifier": "233201234567",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("send status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !resp.Success {
		t.Fatalf("send response: %+v", resp)
	}

	code := regexp.MustCompile(`[0-9]{6}`).FindString(ch.lastMsg)
	if code == "" {
		t.Fatalf("no code in delivered message %q", ch.lastMsg)
	}

	rec, resp = doJSON(t, router, http.MethodPost, "/api/v1/otp/verify", map[string]string{
		"identifier": "233201234567",
		"code":       code,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !resp.Success {
		t.Fatalf("verify response: %+v", resp)
	}

	// Single use: the same code is rejected as unknown now.
	rec, _ = doJSON(t, router, http.MethodPost, "/api/v1/otp/verify", map[string]string{
		"identifier": "233201234567",
		"code":       code,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("replay status = %d, want 404", rec.Code)
	}
}

func TestSendRateLimitedOverHTTP(t *testing.T) {
	router, _ := newTestServer(t)

	body := map[string]string{"channel": "sms", "identifier": "233201234567"}
	for i := 0; i < 3; i++ {
		rec, _ := doJSON(t, router, http.MethodPost, "/api/v1/otp/send", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("send %d status = %d", i+1, rec.Code)
		}
	}

	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/otp/send", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if resp.Success {
		t.Fatal("rate-limited response claims success")
	}
}

func TestVerifyWrongCodeReportsRemaining(t *testing.T) {
	router, _ := newTestServer(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/api/v1/otp/send", map[string]string{
		"channel":    "sms",
		"identifier": "233201234567",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("send status = %d", rec.Code)
	}

	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/otp/verify", map[string]string{
		"identifier": "233201234567",
		"code":       "000000",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data = %#v", resp.Data)
	}
	if remaining, _ := data["attempts_remaining"].(float64); remaining != 2 {
		t.Fatalf("attempts_remaining = %v, want 2", data["attempts_remaining"])
	}
}

func TestVerifyUnknownIdentifier(t *testing.T) {
	router, _ := newTestServer(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/api/v1/otp/verify", map[string]string{
		"identifier": "nobody",
		"code":       "123456",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSendValidation(t *testing.T) {
	router, _ := newTestServer(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/api/v1/otp/send", map[string]string{
		"channel": "sms",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing identifier: status = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/otp/send", bytes.NewBufferString("{not json"))
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status = %d, want 400", rec2.Code)
	}
}

func TestGetTTLOverHTTP(t *testing.T) {
	router, _ := newTestServer(t)

	rec, _ := doJSON(t, router, http.MethodGet, "/api/v1/otp/233201234567/ttl", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("no code yet: status = %d, want 404", rec.Code)
	}

	rec, _ = doJSON(t, router, http.MethodPost, "/api/v1/otp/send", map[string]string{
		"channel":    "sms",
		"identifier": "233201234567",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("send status = %d", rec.Code)
	}

	rec, resp := doJSON(t, router, http.MethodGet, "/api/v1/otp/233201234567/ttl", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data = %#v", resp.Data)
	}
	if secs, _ := data["expires_in_seconds"].(float64); secs != 600 {
		t.Fatalf("expires_in_seconds = %v, want 600", data["expires_in_seconds"])
	}
}

func TestChannelAdminOverHTTP(t *testing.T) {
	router, _ := newTestServer(t)

	rec, resp := doJSON(t, router, http.MethodGet, "/api/v1/channels/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data = %#v", resp.Data)
	}
	active, _ := data["active"].(map[string]interface{})
	if active["sms"] != "stub-sms" {
		t.Fatalf("active sms = %v, want stub-sms", active["sms"])
	}

	rec, _ = doJSON(t, router, http.MethodPut, "/api/v1/channels/active", map[string]string{
		"modality": "sms",
		"name":     "backup-sms",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("switch status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec, resp = doJSON(t, router, http.MethodGet, "/api/v1/channels/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	data = resp.Data.(map[string]interface{})
	active, _ = data["active"].(map[string]interface{})
	if active["sms"] != "backup-sms" {
		t.Fatalf("active sms after switch = %v, want backup-sms", active["sms"])
	}

	rec, _ = doJSON(t, router, http.MethodPut, "/api/v1/channels/active", map[string]string{
		"modality": "fax",
		"name":     "stub-sms",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad modality status = %d, want 400", rec.Code)
	}
}
