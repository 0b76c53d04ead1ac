package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kalefund/fundgate/internal/middleware"
	"github.com/kalefund/fundgate/internal/model"
	"github.com/kalefund/fundgate/internal/pkg/apperrors"
	"github.com/kalefund/fundgate/internal/rebalance"
	"github.com/kalefund/fundgate/internal/service"
)

type RebalanceHandler struct {
	rebalancer *rebalance.Rebalancer
	svc        *service.FundService
}

func NewRebalanceHandler(r *rebalance.Rebalancer, svc *service.FundService) *RebalanceHandler {
	return &RebalanceHandler{rebalancer: r, svc: svc}
}

func (h *RebalanceHandler) Rebalance(c *gin.Context) {
	caller := middleware.CallerID(c)

	var req model.RebalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	if err := h.svc.RequireAdmin(c.Request.Context(), caller); err != nil {
		c.Error(err)
		return
	}

	result, err := h.rebalancer.Rebalance(c.Request.Context(), req.TargetAllocations, req.CurrentPrices)
	if err != nil {
		middleware.AddAuditContext(c, "error", err.Error())
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "action", "rebalance")
	middleware.AddAuditContext(c, "orders_executed", result.OrdersExecuted)
	c.JSON(http.StatusOK, result)
}

// Preview returns the snapshot and order list a rebalance would
// produce, without trading.
func (h *RebalanceHandler) Preview(c *gin.Context) {
	var req model.RebalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	snap, orders, err := h.rebalancer.Preview(c.Request.Context(), req.TargetAllocations, req.CurrentPrices)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"portfolio": snap,
		"orders":    orders,
	})
}

func (h *RebalanceHandler) GetConfig(c *gin.Context) {
	cfg, err := h.svc.GetRebalanceConfig(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *RebalanceHandler) UpdateConfig(c *gin.Context) {
	caller := middleware.CallerID(c)

	var patch model.RebalanceConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	cfg, err := h.svc.UpdateRebalanceConfig(c.Request.Context(), caller, patch)
	if err != nil {
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "action", "update_rebalance_config")
	c.JSON(http.StatusOK, cfg)
}

func (h *RebalanceHandler) GetLastRebalance(c *gin.Context) {
	ts, err := h.svc.GetLastRebalance(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"last_rebalance": ts})
}
