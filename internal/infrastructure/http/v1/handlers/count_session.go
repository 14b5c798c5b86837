package handlers

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"storecount/internal/core/apperror"
	"storecount/internal/domain/counting"
	"storecount/internal/infrastructure/export"
	"storecount/internal/infrastructure/http/v1/dto"
	"storecount/internal/infrastructure/http/v1/middleware"
)

// CountSessionHandler handles count session requests. Capability checks
// happen in the counting service, which knows the session's store.
type CountSessionHandler struct {
	*BaseHandler
	service *counting.Service
}

// NewCountSessionHandler creates a new count session handler.
func NewCountSessionHandler(base *BaseHandler, service *counting.Service) *CountSessionHandler {
	return &CountSessionHandler{BaseHandler: base, service: service}
}

// Open handles POST /stores/:storeId/count-sessions
func (h *CountSessionHandler) Open(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	storeID, ok := h.PathID(c, middleware.StoreIDParam)
	if !ok {
		return
	}

	var req dto.OpenSessionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	session, err := h.service.Open(c.Request.Context(), actor, req.ToInput(storeID))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromSession(*session))
}

// List handles GET /stores/:storeId/count-sessions
func (h *CountSessionHandler) List(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	storeID, ok := h.PathID(c, middleware.StoreIDParam)
	if !ok {
		return
	}

	var q dto.ListSessionsQuery
	if !h.BindQuery(c, &q) {
		return
	}

	result, err := h.service.ListSessions(c.Request.Context(), actor, counting.ListFilter{
		StoreID: storeID,
		Status:  q.StatusFilter(),
		Page:    q.Page(),
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(result, dto.FromSession))
}

// Get handles GET /count-sessions/:id
func (h *CountSessionHandler) Get(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	sessionID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	session, err := h.service.GetSession(c.Request.Context(), actor, sessionID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromSession(*session))
}

// RecordCount handles PUT /count-sessions/:id/items/:productId
func (h *CountSessionHandler) RecordCount(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	sessionID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	productID, ok := h.PathID(c, "productId")
	if !ok {
		return
	}

	var req dto.RecordCountRequest
	if !h.BindJSON(c, &req) {
		return
	}
	physical, err := req.Quantity()
	if err != nil {
		h.Error(c, err)
		return
	}

	item, err := h.service.RecordCount(c.Request.Context(), actor, counting.RecordInput{
		SessionID:      sessionID,
		StoreProductID: productID,
		PhysicalStock:  physical,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromItem(*item))
}

// Close handles POST /count-sessions/:id/close
func (h *CountSessionHandler) Close(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	sessionID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	var req dto.CloseSessionRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}

	var (
		report *counting.Report
		err    error
	)
	if req.Reconcile {
		report, err = h.service.CloseWithReconciliation(c.Request.Context(), actor, sessionID)
	} else {
		report, err = h.service.CloseWithoutReconciliation(c.Request.Context(), actor, sessionID)
	}
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// Report handles GET /count-sessions/:id/report
func (h *CountSessionHandler) Report(c *gin.Context) {
	report, ok := h.report(c)
	if !ok {
		return
	}
	h.OK(c, report)
}

// ReportXLSX handles GET /count-sessions/:id/report.xlsx
func (h *CountSessionHandler) ReportXLSX(c *gin.Context) {
	report, ok := h.report(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, report); err != nil {
		h.Error(c, apperror.NewInternal(err).WithDetail("component", "xlsx"))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+export.XLSXFilename(report)+`"`)
	c.Data(http.StatusOK, export.XLSXContentType, buf.Bytes())
}

func (h *CountSessionHandler) report(c *gin.Context) (*counting.Report, bool) {
	actor, ok := h.Actor(c)
	if !ok {
		return nil, false
	}
	sessionID, ok := h.PathID(c, "id")
	if !ok {
		return nil, false
	}

	report, err := h.service.Report(c.Request.Context(), actor, sessionID)
	if err != nil {
		h.Error(c, err)
		return nil, false
	}
	return report, true
}
