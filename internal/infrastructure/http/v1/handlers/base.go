// Package handlers provides HTTP request handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storecount/internal/core/apperror"
	"storecount/internal/core/id"
	"storecount/internal/core/security"
	"storecount/internal/infrastructure/http/v1/middleware"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// BindJSON binds and validates JSON request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// BindQuery binds and validates query parameters.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid query parameters").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// Error registers error on Gin context and aborts request.
// Actual JSON response is produced by middleware.ErrorHandler.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// Actor returns the authenticated caller.
func (h *BaseHandler) Actor(c *gin.Context) (security.Actor, bool) {
	actor, ok := security.ActorFromContext(c.Request.Context())
	if !ok {
		h.Error(c, apperror.NewUnauthorized("authentication required"))
	}
	return actor, ok
}

// PathID parses a uuid route parameter.
func (h *BaseHandler) PathID(c *gin.Context, param string) (id.ID, bool) {
	raw := c.Param(param)
	v, err := id.Parse(raw)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid "+param).WithDetail(param, raw))
		return id.Nil(), false
	}
	return v, true
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	middleware.CompleteIdempotency(c, http.StatusOK, "application/json", data)
	c.JSON(http.StatusOK, data)
}

// Created sends 201 response with data.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	middleware.CompleteIdempotency(c, http.StatusCreated, "application/json", data)
	c.JSON(http.StatusCreated, data)
}
