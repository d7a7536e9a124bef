package mpesa

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	paymentdomain "github.com/rentease/rentledger/internal/paymentintent/domain"
)

const successCallback = `{
	"Body": {
		"stkCallback": {
			"MerchantRequestID": "29115-34620561-1",
			"CheckoutRequestID": "ws_CO_191220191020363925",
			"ResultCode": 0,
			"ResultDesc": "The service request is processed successfully.",
			"CallbackMetadata": {
				"Item": [
					{"Name": "Amount", "Value": 22000},
					{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
					{"Name": "PhoneNumber", "Value": 254712345678}
				]
			}
		}
	}
}`

const cancelledCallback = `{
	"Body": {
		"stkCallback": {
			"MerchantRequestID": "29115-34620561-2",
			"CheckoutRequestID": "ws_CO_191220191020363926",
			"ResultCode": 1032,
			"ResultDesc": "Request cancelled by user"
		}
	}
}`

func TestParseCallback(t *testing.T) {
	adapter := &Adapter{}

	event, err := adapter.Parse(context.Background(), []byte(successCallback))
	if err != nil {
		t.Fatalf("parse success callback: %v", err)
	}
	if event.Outcome != paymentdomain.OutcomeCompleted {
		t.Fatalf("expected completed outcome, got %s", event.Outcome)
	}
	if event.ProviderRef != "ws_CO_191220191020363925" {
		t.Fatalf("unexpected provider ref %q", event.ProviderRef)
	}
	if event.Amount != 22000 {
		t.Fatalf("expected amount 22000, got %d", event.Amount)
	}

	event, err = adapter.Parse(context.Background(), []byte(cancelledCallback))
	if err != nil {
		t.Fatalf("parse cancelled callback: %v", err)
	}
	if event.Outcome != paymentdomain.OutcomeFailed {
		t.Fatalf("expected failed outcome, got %s", event.Outcome)
	}
	if event.ResultCode != 1032 {
		t.Fatalf("expected result code 1032, got %d", event.ResultCode)
	}
	if event.Description != "Request cancelled by user" {
		t.Fatalf("unexpected description %q", event.Description)
	}
}

func TestParseCallback_Malformed(t *testing.T) {
	adapter := &Adapter{}

	for _, payload := range []string{"not json", `{"Body":{"stkCallback":{}}}`} {
		if _, err := adapter.Parse(context.Background(), []byte(payload)); !errors.Is(err, paymentdomain.ErrInvalidPayload) {
			t.Fatalf("payload %q: expected invalid payload, got %v", payload, err)
		}
	}
}

func TestVerifyCallbackSignature(t *testing.T) {
	payload := []byte(successCallback)

	open := &Adapter{}
	if err := open.Verify(context.Background(), payload, http.Header{}); err != nil {
		t.Fatalf("unsecured adapter should accept: %v", err)
	}

	secured := &Adapter{callbackSecret: "secret"}
	if err := secured.Verify(context.Background(), payload, http.Header{}); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature for missing header, got %v", err)
	}

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write(payload)
	header := http.Header{}
	header.Set("X-Callback-Signature", hex.EncodeToString(mac.Sum(nil)))
	if err := secured.Verify(context.Background(), payload, header); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestPush(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/v1/generate":
			if _, _, ok := r.BasicAuth(); !ok {
				t.Errorf("token request missing basic auth")
			}
			json.NewEncoder(w).Encode(map[string]string{
				"access_token": "token-123",
				"expires_in":   "3599",
			})
		case "/mpesa/stkpush/v1/processrequest":
			if got := r.Header.Get("Authorization"); got != "Bearer token-123" {
				t.Errorf("unexpected authorization header %q", got)
			}
			var req stkPushRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode push request: %v", err)
			}
			if req.BusinessShortCode != "174379" || req.Amount != 22000 {
				t.Errorf("unexpected push request %+v", req)
			}
			json.NewEncoder(w).Encode(stkPushResponse{
				MerchantRequestID: "29115-34620561-1",
				CheckoutRequestID: "ws_CO_191220191020363925",
				ResponseCode:      "0",
				CustomerMessage:   "Success. Request accepted for processing",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	adapter := &Adapter{
		baseURL:        server.URL,
		consumerKey:    "key",
		consumerSecret: "secret",
		passkey:        "passkey",
		callbackURL:    "https://example.com/api/payments/callback/mpesa",
		client:         server.Client(),
	}

	result, err := adapter.Push(context.Background(), paymentdomain.PushRequest{
		Amount:          22000,
		PhoneNumber:     "254712345678",
		AccountRef:      "rent-march",
		SettlementShort: "174379",
		Description:     "Rent payment",
	})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if result.ProviderRef != "ws_CO_191220191020363925" {
		t.Fatalf("unexpected provider ref %q", result.ProviderRef)
	}
	if !result.PromptDelivered {
		t.Fatalf("expected prompt delivered")
	}

	// Second push reuses the cached token.
	if _, err := adapter.Push(context.Background(), paymentdomain.PushRequest{
		Amount:          22000,
		PhoneNumber:     "254712345678",
		SettlementShort: "174379",
	}); err != nil {
		t.Fatalf("second push: %v", err)
	}
	if !time.Now().Before(adapter.tokenExpiry) {
		t.Fatalf("expected cached token expiry in the future")
	}
}

func TestPush_ProviderDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	adapter := &Adapter{
		baseURL: server.URL,
		client:  server.Client(),
	}
	_, err := adapter.Push(context.Background(), paymentdomain.PushRequest{Amount: 100, SettlementShort: "174379"})
	if !errors.Is(err, paymentdomain.ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable, got %v", err)
	}
}

func TestPush_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v1/generate" {
			json.NewEncoder(w).Encode(map[string]string{"access_token": "token-123"})
			return
		}
		w.Write([]byte("{"))
	}))
	defer server.Close()

	adapter := &Adapter{
		baseURL: server.URL,
		client:  server.Client(),
	}
	_, err := adapter.Push(context.Background(), paymentdomain.PushRequest{Amount: 100, SettlementShort: "174379"})
	if !errors.Is(err, paymentdomain.ErrProviderMalformedResponse) {
		t.Fatalf("expected malformed response error, got %v", err)
	}
}

func TestFactoryConfig(t *testing.T) {
	factory := NewFactory()
	if factory.Provider() != "mpesa" {
		t.Fatalf("unexpected provider name %q", factory.Provider())
	}

	if _, err := factory.NewAdapter(paymentdomain.AdapterConfig{}); !errors.Is(err, paymentdomain.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}

	adapter, err := factory.NewAdapter(paymentdomain.AdapterConfig{Config: map[string]any{
		"base_url":        "https://sandbox.safaricom.co.ke",
		"consumer_key":    "key",
		"consumer_secret": "secret",
		"passkey":         "passkey",
		"callback_url":    "https://example.com/api/payments/callback/mpesa",
	}})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if adapter == nil {
		t.Fatalf("expected adapter")
	}
}
