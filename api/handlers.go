// Package api exposes the engine over HTTP with gin.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vitwit/chaindonate"
	"github.com/vitwit/chaindonate/intents"
	"github.com/vitwit/chaindonate/logger"
	"github.com/vitwit/chaindonate/types"
)

// Service is the part of the engine the HTTP surface calls.
type Service interface {
	CreateIntent(ctx context.Context, req intents.CreateRequest) (*types.PaymentIntentView, error)
	GetIntent(ctx context.Context, intentID string) (*types.PaymentIntentView, error)
	VerifyIntentTransaction(ctx context.Context, intentID, txRef string) (*types.VerificationResult, error)
	Supported() []chaindonate.SupportedNetwork
}

var _ Service = (*chaindonate.Engine)(nil)

type verifyRequest struct {
	TxRef string `json:"txRef" binding:"required"`
}

// ---------------- INTENTS ----------------

func CreateIntent(svc Service, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req intents.CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": types.ErrValidation, "message": err.Error()}})
			return
		}
		view, err := svc.CreateIntent(c.Request.Context(), req)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, view)
	}
}

func GetIntent(svc Service, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := svc.GetIntent(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func VerifyIntent(svc Service, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req verifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": types.ErrInvalidReference, "message": "txRef is required"}})
			return
		}
		res, err := svc.VerifyIntentTransaction(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.TxRef))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// ---------------- NETWORKS ----------------

func ListNetworks(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"networks": svc.Supported()})
	}
}

// StatusFor maps an engine error to its HTTP status.
func StatusFor(err error) int {
	switch types.ErrorCode(err) {
	case types.ErrNotFound:
		return http.StatusNotFound
	case types.ErrValidation, types.ErrInvalidReference:
		return http.StatusBadRequest
	case types.ErrGoalReached, types.ErrIntentClosed, types.ErrIntentExpired:
		return http.StatusConflict
	case types.ErrAmountMismatch, types.ErrAddressMismatch, types.ErrInsufficientConfirmations,
		types.ErrTransactionFailed, types.ErrReplayBlocked:
		return http.StatusUnprocessableEntity
	case types.ErrUnimplemented:
		return http.StatusNotImplemented
	case types.ErrNetwork:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, log logger.Logger, err error) {
	status := StatusFor(err)
	var de *types.DonateError
	if !errors.As(err, &de) {
		log.Error("request failed", map[string]any{"path": c.FullPath(), "err": err})
		c.JSON(status, gin.H{"error": gin.H{"code": "INTERNAL", "message": "internal error"}})
		return
	}
	c.JSON(status, gin.H{"error": de})
}
