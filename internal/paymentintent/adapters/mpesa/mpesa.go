package mpesa

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	paymentdomain "github.com/rentease/rentledger/internal/paymentintent/domain"
)

const timestampLayout = "20060102150405"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "mpesa"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PushAdapter, error) {
	baseURL, ok := readString(cfg.Config, "base_url")
	if !ok {
		return nil, paymentdomain.ErrInvalidConfig
	}
	consumerKey, ok := readString(cfg.Config, "consumer_key")
	if !ok {
		return nil, paymentdomain.ErrInvalidConfig
	}
	consumerSecret, ok := readString(cfg.Config, "consumer_secret")
	if !ok {
		return nil, paymentdomain.ErrInvalidConfig
	}
	passkey, ok := readString(cfg.Config, "passkey")
	if !ok {
		return nil, paymentdomain.ErrInvalidConfig
	}
	callbackURL, _ := readString(cfg.Config, "callback_url")
	callbackSecret, _ := readString(cfg.Config, "callback_secret")

	return &Adapter{
		baseURL:        strings.TrimRight(baseURL, "/"),
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		passkey:        passkey,
		callbackURL:    callbackURL,
		callbackSecret: callbackSecret,
		client:         &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type Adapter struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	passkey        string
	callbackURL    string
	callbackSecret string
	client         *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

func (a *Adapter) Push(ctx context.Context, req paymentdomain.PushRequest) (*paymentdomain.PushResult, error) {
	token, err := a.token(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().UTC().Format(timestampLayout)
	password := base64.StdEncoding.EncodeToString(
		[]byte(req.SettlementShort + a.passkey + timestamp),
	)

	body, err := json.Marshal(stkPushRequest{
		BusinessShortCode: req.SettlementShort,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.Amount,
		PartyA:            req.PhoneNumber,
		PartyB:            req.SettlementShort,
		PhoneNumber:       req.PhoneNumber,
		CallBackURL:       a.callbackURL,
		AccountReference:  req.AccountRef,
		TransactionDesc:   req.Description,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrProviderUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", paymentdomain.ErrProviderUnavailable, resp.StatusCode)
	}

	var pushResp stkPushResponse
	if err := json.Unmarshal(payload, &pushResp); err != nil {
		return nil, paymentdomain.ErrProviderMalformedResponse
	}
	if strings.TrimSpace(pushResp.CheckoutRequestID) == "" {
		return nil, paymentdomain.ErrProviderMalformedResponse
	}
	if strings.TrimSpace(pushResp.ResponseCode) != "0" {
		return nil, fmt.Errorf("%w: response code %s", paymentdomain.ErrProviderUnavailable, pushResp.ResponseCode)
	}

	return &paymentdomain.PushResult{
		ProviderRef:     pushResp.CheckoutRequestID,
		PromptDelivered: true,
		CustomerMessage: strings.TrimSpace(pushResp.CustomerMessage),
	}, nil
}

// token returns a cached OAuth token, refreshing when within a minute of
// expiry.
func (a *Adapter) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry.Add(-time.Minute)) {
		return a.accessToken, nil
	}

	endpoint := a.baseURL + "/oauth/v1/generate?" + url.Values{
		"grant_type": {"client_credentials"},
	}.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	httpReq.SetBasicAuth(a.consumerKey, a.consumerSecret)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", paymentdomain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token status %d", paymentdomain.ErrProviderUnavailable, resp.StatusCode)
	}

	var token tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&token); err != nil {
		return "", paymentdomain.ErrProviderMalformedResponse
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return "", paymentdomain.ErrProviderMalformedResponse
	}

	ttl := 3600 * time.Second
	if parsed, err := time.ParseDuration(strings.TrimSpace(token.ExpiresIn) + "s"); err == nil && parsed > 0 {
		ttl = parsed
	}
	a.accessToken = token.AccessToken
	a.tokenExpiry = time.Now().Add(ttl)
	return a.accessToken, nil
}

// Verify authenticates an inbound callback. The provider does not sign
// callback bodies, so when a shared callback secret is configured the
// public endpoint requires its HMAC in X-Callback-Signature.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.callbackSecret == "" {
		return nil
	}

	signature := strings.TrimSpace(headers.Get("X-Callback-Signature"))
	if signature == "" {
		return paymentdomain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.callbackSecret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

type stkCallbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string          `json:"Name"`
					Value json.RawMessage `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.CallbackEvent, error) {
	var envelope stkCallbackEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	callback := envelope.Body.StkCallback
	if strings.TrimSpace(callback.CheckoutRequestID) == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	outcome := paymentdomain.OutcomeFailed
	if callback.ResultCode == 0 {
		outcome = paymentdomain.OutcomeCompleted
	}

	var amount int64
	for _, item := range callback.CallbackMetadata.Item {
		if item.Name != "Amount" {
			continue
		}
		var value float64
		if err := json.Unmarshal(item.Value, &value); err == nil {
			amount = int64(value)
		}
	}

	return &paymentdomain.CallbackEvent{
		Provider:    "mpesa",
		ProviderRef: callback.CheckoutRequestID,
		Outcome:     outcome,
		ResultCode:  callback.ResultCode,
		Description: strings.TrimSpace(callback.ResultDesc),
		Amount:      amount,
		RawPayload:  payload,
	}, nil
}

func readString(config map[string]any, key string) (string, bool) {
	if config == nil {
		return "", false
	}
	raw, ok := config[key]
	if !ok {
		return "", false
	}
	value, ok := raw.(string)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}
