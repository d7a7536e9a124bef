package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/rentease/rentledger/internal/ledger/domain"
	"github.com/rentease/rentledger/internal/paymentintent/adapters"
	paymentdomain "github.com/rentease/rentledger/internal/paymentintent/domain"
	"go.uber.org/zap"
)

type fakeIntentService struct {
	initiateCalls int
	initiateReq   paymentdomain.InitiateRequest
	initiateResp  paymentdomain.InitiateResponse
	initiateErr   error

	statusResp paymentdomain.StatusResponse
	statusErr  error

	callbackCalls  int
	callbackEvents []paymentdomain.CallbackEvent
	callbackErr    error
}

func (f *fakeIntentService) Initiate(ctx context.Context, req paymentdomain.InitiateRequest) (paymentdomain.InitiateResponse, error) {
	f.initiateCalls++
	f.initiateReq = req
	_ = ctx
	return f.initiateResp, f.initiateErr
}

func (f *fakeIntentService) GetStatus(ctx context.Context, intentID snowflake.ID) (paymentdomain.StatusResponse, error) {
	_ = ctx
	_ = intentID
	return f.statusResp, f.statusErr
}

func (f *fakeIntentService) ApplyCallback(ctx context.Context, event paymentdomain.CallbackEvent) error {
	f.callbackCalls++
	f.callbackEvents = append(f.callbackEvents, event)
	_ = ctx
	return f.callbackErr
}

func (f *fakeIntentService) SweepExpired(ctx context.Context, batchSize int) (int64, error) {
	_ = ctx
	_ = batchSize
	return 0, nil
}

type fakeLedgerService struct {
	summary   ledgerdomain.TenantSummary
	statement ledgerdomain.Statement
	overview  ledgerdomain.LandlordOverview
	err       error

	lastMonth int
	lastYear  int
}

func (f *fakeLedgerService) TenantSummary(ctx context.Context, tenantID snowflake.ID) (ledgerdomain.TenantSummary, error) {
	_ = ctx
	f.summary.TenantID = tenantID
	return f.summary, f.err
}

func (f *fakeLedgerService) TenantStatement(ctx context.Context, tenantID snowflake.ID, month, year int) (ledgerdomain.Statement, error) {
	_ = ctx
	f.lastMonth = month
	f.lastYear = year
	f.statement.TenantID = tenantID
	return f.statement, f.err
}

func (f *fakeLedgerService) LandlordOverview(ctx context.Context, landlordID snowflake.ID) (ledgerdomain.LandlordOverview, error) {
	_ = ctx
	f.overview.LandlordID = landlordID
	return f.overview, f.err
}

func (f *fakeLedgerService) ApplyPayment(ctx context.Context, req ledgerdomain.ApplyPaymentRequest) (ledgerdomain.ApplyPaymentResult, error) {
	_ = ctx
	_ = req
	return ledgerdomain.ApplyPaymentResult{}, nil
}

type echoAdapter struct {
	verifyErr error
	parseErr  error
	event     paymentdomain.CallbackEvent
}

func (a *echoAdapter) Push(ctx context.Context, req paymentdomain.PushRequest) (*paymentdomain.PushResult, error) {
	_ = ctx
	_ = req
	return &paymentdomain.PushResult{ProviderRef: "ref"}, nil
}

func (a *echoAdapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	_ = ctx
	_ = payload
	_ = headers
	return a.verifyErr
}

func (a *echoAdapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.CallbackEvent, error) {
	_ = ctx
	if a.parseErr != nil {
		return nil, a.parseErr
	}
	event := a.event
	event.RawPayload = payload
	return &event, nil
}

type echoFactory struct {
	adapter *echoAdapter
}

func (f *echoFactory) Provider() string { return "fake" }

func (f *echoFactory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PushAdapter, error) {
	_ = cfg
	return f.adapter, nil
}

func newTestServer(intentSvc paymentdomain.Service, ledgerSvc ledgerdomain.Service, adapter *echoAdapter) (*Server, *gin.Engine) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())

	srv := &Server{
		engine:         router,
		log:            zap.NewNop(),
		ledgerSvc:      ledgerSvc,
		intentSvc:      intentSvc,
		registry:       adapters.NewRegistry(&echoFactory{adapter: adapter}),
		adapterConfigs: map[string]paymentdomain.AdapterConfig{},
	}
	srv.registerAPIRoutes()

	return srv, router
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBuffer(nil)
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestInitiatePayment(t *testing.T) {
	intentSvc := &fakeIntentService{
		initiateResp: paymentdomain.InitiateResponse{
			IntentID:        snowflake.ID(9001),
			CustomerMessage: "Enter your PIN",
		},
	}
	_, router := newTestServer(intentSvc, &fakeLedgerService{}, &echoAdapter{})

	resp := doJSON(router, http.MethodPost, "/api/payments/initiate",
		`{"tenant_id":"101","landlord_id":"202","bill_id":"303","amount":25000,"phone_number":"0712345678"}`)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body struct {
		Success         bool   `json:"success"`
		PaymentIntentID string `json:"payment_intent_id"`
		CustomerMessage string `json:"customer_message"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.Success {
		t.Fatal("expected success=true")
	}
	if body.PaymentIntentID != "9001" {
		t.Fatalf("expected intent id 9001, got %q", body.PaymentIntentID)
	}
	if body.CustomerMessage != "Enter your PIN" {
		t.Fatalf("unexpected customer message %q", body.CustomerMessage)
	}

	if intentSvc.initiateCalls != 1 {
		t.Fatalf("expected 1 initiate call, got %d", intentSvc.initiateCalls)
	}
	if intentSvc.initiateReq.TenantID != snowflake.ID(101) {
		t.Fatalf("unexpected tenant id %v", intentSvc.initiateReq.TenantID)
	}
	if intentSvc.initiateReq.BillID == nil || *intentSvc.initiateReq.BillID != snowflake.ID(303) {
		t.Fatalf("unexpected bill id %v", intentSvc.initiateReq.BillID)
	}
}

func TestInitiatePayment_BadIDsReturn400(t *testing.T) {
	intentSvc := &fakeIntentService{}
	_, router := newTestServer(intentSvc, &fakeLedgerService{}, &echoAdapter{})

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"tenant_id":`},
		{"bad tenant", `{"tenant_id":"abc","landlord_id":"202","amount":100,"phone_number":"0712345678"}`},
		{"bad landlord", `{"tenant_id":"101","landlord_id":"x","amount":100,"phone_number":"0712345678"}`},
		{"bad bill", `{"tenant_id":"101","landlord_id":"202","bill_id":"??","amount":100,"phone_number":"0712345678"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(router, http.MethodPost, "/api/payments/initiate", tc.body)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", resp.Code)
			}
		})
	}
	if intentSvc.initiateCalls != 0 {
		t.Fatalf("expected no initiate calls, got %d", intentSvc.initiateCalls)
	}
}

func TestInitiatePayment_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"amount too large", paymentdomain.ErrAmountTooLarge, http.StatusBadRequest},
		{"invalid phone", paymentdomain.ErrInvalidPhone, http.StatusBadRequest},
		{"no settlement account", paymentdomain.ErrNoSettlementAccount, http.StatusUnprocessableEntity},
		{"provider not found", paymentdomain.ErrProviderNotFound, http.StatusUnprocessableEntity},
		{"provider down", paymentdomain.ErrProviderUnavailable, http.StatusBadGateway},
		{"malformed response", paymentdomain.ErrProviderMalformedResponse, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			intentSvc := &fakeIntentService{initiateErr: tc.err}
			_, router := newTestServer(intentSvc, &fakeLedgerService{}, &echoAdapter{})

			resp := doJSON(router, http.MethodPost, "/api/payments/initiate",
				`{"tenant_id":"101","landlord_id":"202","amount":100,"phone_number":"0712345678"}`)
			if resp.Code != tc.status {
				t.Fatalf("expected status %d, got %d: %s", tc.status, resp.Code, resp.Body.String())
			}

			var body struct {
				Success bool `json:"success"`
			}
			if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if body.Success {
				t.Fatal("expected success=false on error")
			}
		})
	}
}

func TestGetPaymentStatus(t *testing.T) {
	message := "The service request is processed successfully."
	intentSvc := &fakeIntentService{
		statusResp: paymentdomain.StatusResponse{
			IntentID:      snowflake.ID(9001),
			Status:        paymentdomain.IntentStatusCompleted,
			ResultMessage: &message,
			ExpiresAt:     time.Date(2026, 3, 5, 9, 2, 0, 0, time.UTC),
		},
	}
	_, router := newTestServer(intentSvc, &fakeLedgerService{}, &echoAdapter{})

	resp := doJSON(router, http.MethodGet, "/api/payments/9001/status", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var body struct {
		Status            string  `json:"status"`
		ResultDescription *string `json:"result_description"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Status != "completed" {
		t.Fatalf("expected completed, got %q", body.Status)
	}
	if body.ResultDescription == nil || *body.ResultDescription != message {
		t.Fatalf("unexpected result description %v", body.ResultDescription)
	}
}

func TestGetPaymentStatus_NotFound(t *testing.T) {
	intentSvc := &fakeIntentService{statusErr: paymentdomain.ErrIntentNotFound}
	_, router := newTestServer(intentSvc, &fakeLedgerService{}, &echoAdapter{})

	resp := doJSON(router, http.MethodGet, "/api/payments/42/status", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestProviderCallback_Accepted(t *testing.T) {
	adapter := &echoAdapter{
		event: paymentdomain.CallbackEvent{
			ProviderRef: "ws_CO_0001",
			Outcome:     paymentdomain.OutcomeCompleted,
			Amount:      25000,
		},
	}
	intentSvc := &fakeIntentService{}
	_, router := newTestServer(intentSvc, &fakeLedgerService{}, adapter)

	resp := doJSON(router, http.MethodPost, "/api/payments/callback/fake", `{"Body":{}}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if intentSvc.callbackCalls != 1 {
		t.Fatalf("expected 1 callback call, got %d", intentSvc.callbackCalls)
	}

	event := intentSvc.callbackEvents[0]
	if event.Provider != "fake" {
		t.Fatalf("expected provider from route, got %q", event.Provider)
	}
	if event.ProviderRef != "ws_CO_0001" {
		t.Fatalf("unexpected provider ref %q", event.ProviderRef)
	}
	if string(event.RawPayload) != `{"Body":{}}` {
		t.Fatalf("raw payload not forwarded: %s", event.RawPayload)
	}
}

func TestProviderCallback_UnknownProvider(t *testing.T) {
	intentSvc := &fakeIntentService{}
	_, router := newTestServer(intentSvc, &fakeLedgerService{}, &echoAdapter{})

	resp := doJSON(router, http.MethodPost, "/api/payments/callback/nope", `{}`)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", resp.Code)
	}
	if intentSvc.callbackCalls != 0 {
		t.Fatal("expected callback not to reach the service")
	}
}

func TestProviderCallback_BadSignature(t *testing.T) {
	adapter := &echoAdapter{verifyErr: paymentdomain.ErrInvalidSignature}
	intentSvc := &fakeIntentService{}
	_, router := newTestServer(intentSvc, &fakeLedgerService{}, adapter)

	resp := doJSON(router, http.MethodPost, "/api/payments/callback/fake", `{}`)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
	if intentSvc.callbackCalls != 0 {
		t.Fatal("expected callback not to reach the service")
	}
}

func TestProviderCallback_MalformedPayload(t *testing.T) {
	adapter := &echoAdapter{parseErr: paymentdomain.ErrInvalidPayload}
	_, router := newTestServer(&fakeIntentService{}, &fakeLedgerService{}, adapter)

	resp := doJSON(router, http.MethodPost, "/api/payments/callback/fake", `not json`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestProviderCallback_UnknownRefReturns404(t *testing.T) {
	adapter := &echoAdapter{
		event: paymentdomain.CallbackEvent{ProviderRef: "ws_unknown", Outcome: paymentdomain.OutcomeCompleted},
	}
	intentSvc := &fakeIntentService{callbackErr: paymentdomain.ErrIntentNotFound}
	_, router := newTestServer(intentSvc, &fakeLedgerService{}, adapter)

	resp := doJSON(router, http.MethodPost, "/api/payments/callback/fake", `{}`)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestGetTenantLedger(t *testing.T) {
	ledgerSvc := &fakeLedgerService{
		summary: ledgerdomain.TenantSummary{
			Outstanding: 27000,
			Credit:      3000,
		},
	}
	_, router := newTestServer(&fakeIntentService{}, ledgerSvc, &echoAdapter{})

	resp := doJSON(router, http.MethodGet, "/api/tenants/101/ledger", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var body struct {
		TenantID    string `json:"tenant_id"`
		Outstanding int64  `json:"outstanding"`
		Credit      int64  `json:"credit"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Outstanding != 27000 || body.Credit != 3000 {
		t.Fatalf("unexpected summary %+v", body)
	}
}

func TestGetTenantStatement_MonthYearQuery(t *testing.T) {
	ledgerSvc := &fakeLedgerService{
		statement: ledgerdomain.Statement{Expected: 27000, Carryover: 5000},
	}
	_, router := newTestServer(&fakeIntentService{}, ledgerSvc, &echoAdapter{})

	resp := doJSON(router, http.MethodGet, "/api/tenants/101/statement?month=3&year=2026", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if ledgerSvc.lastMonth != 3 || ledgerSvc.lastYear != 2026 {
		t.Fatalf("expected month=3 year=2026, got %d/%d", ledgerSvc.lastMonth, ledgerSvc.lastYear)
	}

	resp = doJSON(router, http.MethodGet, "/api/tenants/101/statement?month=13&year=2026", "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for month=13, got %d", resp.Code)
	}
}

func TestGetLandlordOverview(t *testing.T) {
	ledgerSvc := &fakeLedgerService{
		overview: ledgerdomain.LandlordOverview{
			Tenants: []ledgerdomain.OverviewRow{
				{TenantID: snowflake.ID(101), Outstanding: 27000, BillCount: 2},
			},
		},
	}
	_, router := newTestServer(&fakeIntentService{}, ledgerSvc, &echoAdapter{})

	resp := doJSON(router, http.MethodGet, "/api/landlords/202/overview", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var body struct {
		LandlordID string `json:"landlord_id"`
		Tenants    []struct {
			Outstanding int64 `json:"outstanding"`
			BillCount   int   `json:"bill_count"`
		} `json:"tenants"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Tenants) != 1 || body.Tenants[0].Outstanding != 27000 {
		t.Fatalf("unexpected overview %+v", body)
	}
}

func TestHealthAndUnknownRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	resp := doJSON(router, http.MethodGet, "/health", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}
