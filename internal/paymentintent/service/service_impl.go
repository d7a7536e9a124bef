package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/rentease/rentledger/internal/clock"
	"github.com/rentease/rentledger/internal/config"
	ledgerdomain "github.com/rentease/rentledger/internal/ledger/domain"
	obsmetrics "github.com/rentease/rentledger/internal/observability/metrics"
	"github.com/rentease/rentledger/internal/paymentintent/adapters"
	"github.com/rentease/rentledger/internal/paymentintent/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Repo           domain.Repository
	Ledger         ledgerdomain.Service
	Registry       *adapters.Registry
	Holder         *config.PaymentsConfigHolder
	AdapterConfigs map[string]domain.AdapterConfig
	ObsMetrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	repo           domain.Repository
	ledger         ledgerdomain.Service
	registry       *adapters.Registry
	holder         *config.PaymentsConfigHolder
	adapterConfigs map[string]domain.AdapterConfig
	obsMetrics     *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("paymentintent.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		repo:           p.Repo,
		ledger:         p.Ledger,
		registry:       p.Registry,
		holder:         p.Holder,
		adapterConfigs: p.AdapterConfigs,
		obsMetrics:     p.ObsMetrics,
	}
}

func (s *Service) Initiate(ctx context.Context, req domain.InitiateRequest) (domain.InitiateResponse, error) {
	cfg := s.holder.Get()

	if req.TenantID == 0 {
		return domain.InitiateResponse{}, domain.ErrInvalidTenant
	}
	if req.LandlordID == 0 {
		return domain.InitiateResponse{}, domain.ErrInvalidLandlord
	}
	if req.Amount <= 0 {
		return domain.InitiateResponse{}, domain.ErrInvalidAmount
	}
	if req.Amount > cfg.MaxAmount {
		return domain.InitiateResponse{}, domain.ErrAmountTooLarge
	}
	if digitCount(req.PhoneNumber) < cfg.MinPhoneDigits {
		return domain.InitiateResponse{}, domain.ErrInvalidPhone
	}

	account, err := s.repo.FindLandlordAccount(ctx, s.db, req.LandlordID)
	if err != nil {
		return domain.InitiateResponse{}, err
	}
	if account == nil {
		return domain.InitiateResponse{}, domain.ErrNoSettlementAccount
	}

	provider := strings.ToLower(strings.TrimSpace(account.Provider))
	if provider == "" {
		provider = cfg.DefaultProvider
	}

	now := s.clock.Now()
	intent := &domain.PaymentIntent{
		ID:          s.genID.Generate(),
		TenantID:    req.TenantID,
		LandlordID:  req.LandlordID,
		BillID:      req.BillID,
		Amount:      req.Amount,
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		Provider:    provider,
		Status:      domain.IntentStatusCreated,
		CreatedAt:   now,
		ExpiresAt:   now.Add(cfg.IntentTTL),
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, intent); err != nil {
		return domain.InitiateResponse{}, err
	}
	s.obsMetrics.IncIntentInitiated(provider)

	adapter, err := s.registry.NewAdapter(provider, s.adapterConfigs[provider])
	if err != nil {
		s.failIntent(ctx, intent.ID, "payment provider not configured")
		return domain.InitiateResponse{}, err
	}

	pushCtx, cancel := context.WithTimeout(ctx, cfg.ProviderTimeout)
	defer cancel()

	pushStart := s.clock.Now()
	result, err := adapter.Push(pushCtx, domain.PushRequest{
		IntentID:        intent.ID,
		Amount:          req.Amount,
		PhoneNumber:     intent.PhoneNumber,
		AccountRef:      accountRef(req),
		SettlementShort: account.ShortCode,
		Description:     "Rent payment",
	})
	if err != nil {
		s.log.Warn("push request failed",
			zap.Int64("intent_id", int64(intent.ID)),
			zap.String("provider", provider),
			zap.Error(err),
		)
		s.failIntent(ctx, intent.ID, "provider rejected the push request")
		if errors.Is(err, domain.ErrProviderUnavailable) || errors.Is(err, domain.ErrProviderMalformedResponse) {
			return domain.InitiateResponse{}, err
		}
		return domain.InitiateResponse{}, domain.ErrProviderUnavailable
	}
	s.obsMetrics.ObserveProviderLatency(provider, "push", s.clock.Now().Sub(pushStart))

	next := domain.IntentStatusSent
	if result.PromptDelivered {
		next = domain.IntentStatusWaiting
	}
	moved, err := s.repo.MarkSent(ctx, s.db, intent.ID, result.ProviderRef, next, s.clock.Now())
	if err != nil {
		return domain.InitiateResponse{}, err
	}
	if moved {
		s.obsMetrics.IncIntentTransition(string(domain.IntentStatusCreated), string(next))
	}

	message := result.CustomerMessage
	if message == "" {
		message = cfg.CustomerMessage
	}

	s.log.Info("payment intent initiated",
		zap.Int64("intent_id", int64(intent.ID)),
		zap.Int64("tenant_id", int64(req.TenantID)),
		zap.String("provider", provider),
		zap.Int64("amount", req.Amount),
		zap.String("status", string(next)),
	)
	return domain.InitiateResponse{IntentID: intent.ID, CustomerMessage: message}, nil
}

// GetStatus is a pure read. An overdue intent keeps reporting waiting
// until the sweep moves it; status reads never write.
func (s *Service) GetStatus(ctx context.Context, intentID snowflake.ID) (domain.StatusResponse, error) {
	intent, err := s.repo.FindByID(ctx, s.db, intentID)
	if err != nil {
		return domain.StatusResponse{}, err
	}
	if intent == nil {
		return domain.StatusResponse{}, domain.ErrIntentNotFound
	}
	return domain.StatusResponse{
		IntentID:      intent.ID,
		Status:        intent.Status,
		ResultMessage: intent.ResultMessage,
		ExpiresAt:     intent.ExpiresAt,
	}, nil
}

func (s *Service) ApplyCallback(ctx context.Context, event domain.CallbackEvent) error {
	intent, err := s.repo.FindByProviderRef(ctx, s.db, event.Provider, event.ProviderRef)
	if err != nil {
		return err
	}
	if intent == nil {
		return domain.ErrIntentNotFound
	}
	if intent.Status.IsTerminal() {
		s.obsMetrics.IncCallbackApplied("duplicate")
		s.log.Info("callback for terminal intent ignored",
			zap.Int64("intent_id", int64(intent.ID)),
			zap.String("provider_ref", event.ProviderRef),
			zap.String("status", string(intent.Status)),
		)
		return nil
	}

	status := domain.IntentStatusFailed
	if event.Outcome == domain.OutcomeCompleted {
		status = domain.IntentStatusCompleted
	}
	var resultMessage *string
	if event.Description != "" {
		description := event.Description
		resultMessage = &description
	}

	moved, err := s.repo.MarkTerminal(ctx, s.db, intent.ID, status, resultMessage, event.RawPayload, s.clock.Now())
	if err != nil {
		return err
	}
	if !moved {
		// Lost the terminal race against the sweep or a concurrent delivery.
		s.obsMetrics.IncCallbackApplied("duplicate")
		return nil
	}
	s.obsMetrics.IncCallbackApplied(string(event.Outcome))
	s.obsMetrics.IncIntentTransition(string(intent.Status), string(status))

	if status != domain.IntentStatusCompleted {
		s.log.Info("payment intent failed",
			zap.Int64("intent_id", int64(intent.ID)),
			zap.String("provider_ref", event.ProviderRef),
			zap.Int("result_code", event.ResultCode),
		)
		return nil
	}

	if intent.BillID == nil {
		s.log.Warn("completed intent has no bill to credit",
			zap.Int64("intent_id", int64(intent.ID)),
			zap.String("provider_ref", event.ProviderRef),
		)
		return nil
	}

	_, err = s.ledger.ApplyPayment(ctx, ledgerdomain.ApplyPaymentRequest{
		TenantID:    intent.TenantID,
		BillID:      *intent.BillID,
		ProviderRef: event.ProviderRef,
		Amount:      intent.Amount,
		PaidAt:      s.clock.Now(),
	})
	return err
}

func (s *Service) SweepExpired(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = s.holder.Get().SweepBatchSize
	}
	expired, err := s.repo.ExpireBatch(ctx, s.db, s.clock.Now(), batchSize)
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		s.obsMetrics.AddIntentsExpired(int(expired))
		s.log.Info("expired overdue payment intents", zap.Int64("count", expired))
	}
	return expired, nil
}

func (s *Service) failIntent(ctx context.Context, intentID snowflake.ID, reason string) {
	moved, err := s.repo.MarkTerminal(ctx, s.db, intentID, domain.IntentStatusFailed, &reason, nil, s.clock.Now())
	if err != nil {
		s.log.Error("failed to mark intent failed",
			zap.Int64("intent_id", int64(intentID)),
			zap.Error(err),
		)
		return
	}
	if moved {
		s.obsMetrics.IncIntentTransition(string(domain.IntentStatusCreated), string(domain.IntentStatusFailed))
	}
}

func accountRef(req domain.InitiateRequest) string {
	if req.BillID != nil {
		return req.BillID.String()
	}
	return req.TenantID.String()
}

func digitCount(phone string) int {
	count := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			count++
		}
	}
	return count
}
