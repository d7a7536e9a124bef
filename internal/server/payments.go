package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	paymentdomain "github.com/rentease/rentledger/internal/paymentintent/domain"
	"go.uber.org/zap"
)

type initiatePaymentRequest struct {
	TenantID    string `json:"tenant_id"`
	LandlordID  string `json:"landlord_id"`
	BillID      string `json:"bill_id"`
	Amount      int64  `json:"amount"`
	PhoneNumber string `json:"phone_number"`
}

func (s *Server) InitiatePayment(c *gin.Context) {
	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenantID, err := snowflake.ParseString(strings.TrimSpace(req.TenantID))
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant", "invalid tenant_id"))
		return
	}
	landlordID, err := snowflake.ParseString(strings.TrimSpace(req.LandlordID))
	if err != nil {
		AbortWithError(c, newValidationError("landlord_id", "invalid_landlord", "invalid landlord_id"))
		return
	}

	var billID *snowflake.ID
	if trimmed := strings.TrimSpace(req.BillID); trimmed != "" {
		parsed, err := snowflake.ParseString(trimmed)
		if err != nil {
			AbortWithError(c, newValidationError("bill_id", "invalid_bill", "invalid bill_id"))
			return
		}
		billID = &parsed
	}

	resp, err := s.intentSvc.Initiate(c.Request.Context(), paymentdomain.InitiateRequest{
		TenantID:    tenantID,
		LandlordID:  landlordID,
		BillID:      billID,
		Amount:      req.Amount,
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"payment_intent_id": resp.IntentID.String(),
		"customer_message":  resp.CustomerMessage,
	})
}

func (s *Server) GetPaymentStatus(c *gin.Context) {
	intentID, err := snowflake.ParseString(strings.TrimSpace(c.Param("intent_id")))
	if err != nil {
		AbortWithError(c, newValidationError("intent_id", "invalid_intent", "invalid intent_id"))
		return
	}

	resp, err := s.intentSvc.GetStatus(c.Request.Context(), intentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandleProviderCallback is the provider boundary: verify, parse, apply.
// Accepted events and replayed duplicates both return 200 so the provider
// stops redelivering.
func (s *Server) HandleProviderCallback(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	adapter, err := s.registry.NewAdapter(provider, s.adapterConfigs[provider])
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := adapter.Verify(ctx, payload, c.Request.Header); err != nil {
		AbortWithError(c, err)
		return
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	event.Provider = provider

	if err := s.intentSvc.ApplyCallback(ctx, *event); err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		s.log.Warn("callback not applied",
			zap.String("provider", provider),
			zap.String("provider_ref", event.ProviderRef),
			zap.Error(err),
		)
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
