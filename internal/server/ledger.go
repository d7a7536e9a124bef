package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) GetTenantLedger(c *gin.Context) {
	tenantID, err := snowflake.ParseString(strings.TrimSpace(c.Param("tenant_id")))
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant", "invalid tenant_id"))
		return
	}

	summary, err := s.ledgerSvc.TenantSummary(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) GetTenantStatement(c *gin.Context) {
	tenantID, err := snowflake.ParseString(strings.TrimSpace(c.Param("tenant_id")))
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant", "invalid tenant_id"))
		return
	}

	now := time.Now().UTC()
	month, err := parseIntQuery(c.Query("month"), int(now.Month()))
	if err != nil || month < 1 || month > 12 {
		AbortWithError(c, newValidationError("month", "invalid_month", "invalid month"))
		return
	}
	year, err := parseIntQuery(c.Query("year"), now.Year())
	if err != nil || year < 2000 {
		AbortWithError(c, newValidationError("year", "invalid_year", "invalid year"))
		return
	}

	statement, err := s.ledgerSvc.TenantStatement(c.Request.Context(), tenantID, month, year)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, statement)
}

func (s *Server) GetLandlordOverview(c *gin.Context) {
	landlordID, err := snowflake.ParseString(strings.TrimSpace(c.Param("landlord_id")))
	if err != nil {
		AbortWithError(c, newValidationError("landlord_id", "invalid_landlord", "invalid landlord_id"))
		return
	}

	overview, err := s.ledgerSvc.LandlordOverview(c.Request.Context(), landlordID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

func parseIntQuery(value string, def int) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return def, nil
	}
	return strconv.Atoi(trimmed)
}
