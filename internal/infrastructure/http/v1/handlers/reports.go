package handlers

import (
	"github.com/gin-gonic/gin"

	"retailstock/internal/domain/reports"
)

// ReportsHandler handles HTTP requests for reports.
type ReportsHandler struct {
	*BaseHandler
	service *reports.Service
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(base *BaseHandler, service *reports.Service) *ReportsHandler {
	return &ReportsHandler{
		BaseHandler: base,
		service:     service,
	}
}

// StockSummary handles GET /stock/summary
func (h *ReportsHandler) StockSummary(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}

	summary, err := h.service.GetStockSummary(c.Request.Context(), scope)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, summary)
}

// DailyReport handles GET /reports/daily?date=YYYY-MM-DD (default today).
func (h *ReportsHandler) DailyReport(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}

	date, err := h.service.ParseDate(c.Query("date"))
	if err != nil {
		h.Error(c, err)
		return
	}

	report, err := h.service.GetDailyReport(c.Request.Context(), date, scope)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// Dashboard handles GET /dashboard
func (h *ReportsHandler) Dashboard(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}

	d, err := h.service.GetDashboard(c.Request.Context(), scope)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, d)
}

// AccountOverview handles GET /accounts/:id/overview
func (h *ReportsHandler) AccountOverview(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	accountID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	o, err := h.service.GetAccountOverview(c.Request.Context(), scope, accountID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, o)
}
