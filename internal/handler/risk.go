package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kalefund/fundgate/internal/middleware"
	"github.com/kalefund/fundgate/internal/model"
	"github.com/kalefund/fundgate/internal/pkg/apperrors"
	"github.com/kalefund/fundgate/internal/risk"
	"github.com/kalefund/fundgate/internal/service"
)

type RiskHandler struct {
	engine *risk.Engine
	svc    *service.FundService
}

func NewRiskHandler(engine *risk.Engine, svc *service.FundService) *RiskHandler {
	return &RiskHandler{engine: engine, svc: svc}
}

func (h *RiskHandler) GetAllocation(c *gin.Context) {
	profile, err := model.ParseRiskProfile(c.Param("profile"))
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	alloc, err := h.engine.Allocation(c.Request.Context(), profile)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, alloc)
}

func (h *RiskHandler) UpdateAllocation(c *gin.Context) {
	caller := middleware.CallerID(c)
	profile, err := model.ParseRiskProfile(c.Param("profile"))
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	var alloc model.AssetAllocation
	if err := c.ShouldBindJSON(&alloc); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	if err := h.svc.RequireAdmin(c.Request.Context(), caller); err != nil {
		c.Error(err)
		return
	}
	if err := h.engine.UpdateAllocation(c.Request.Context(), profile, alloc); err != nil {
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "action", "update_allocation")
	middleware.AddAuditContext(c, "profile", string(profile))
	c.JSON(http.StatusOK, alloc)
}

func (h *RiskHandler) AssessRisk(c *gin.Context) {
	var req model.AssessRiskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	profile, err := model.ParseRiskProfile(req.Profile)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	assessment, err := h.engine.AssessRisk(c.Request.Context(), profile, req.CurrentAllocation, req.VolatilitySamples)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, assessment)
}

// ShouldRebalance answers whether the given allocation has drifted
// beyond the configured threshold for a profile.
func (h *RiskHandler) ShouldRebalance(c *gin.Context) {
	var req model.AssessRiskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	profile, err := model.ParseRiskProfile(req.Profile)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	need, err := h.engine.ShouldRebalance(c.Request.Context(), profile, req.CurrentAllocation)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"should_rebalance": need})
}

func (h *RiskHandler) UpdateVolatility(c *gin.Context) {
	caller := middleware.CallerID(c)

	var samples []model.VolatilityData
	if err := c.ShouldBindJSON(&samples); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	if err := h.svc.RequireAdmin(c.Request.Context(), caller); err != nil {
		c.Error(err)
		return
	}
	if err := h.engine.UpdateVolatility(c.Request.Context(), samples, time.Now().Unix()); err != nil {
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "action", "update_volatility")
	c.JSON(http.StatusOK, gin.H{"updated": len(samples)})
}

func (h *RiskHandler) GetRiskParameters(c *gin.Context) {
	rp, err := h.svc.GetRiskParameters(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rp)
}

func (h *RiskHandler) UpdateRiskParameters(c *gin.Context) {
	caller := middleware.CallerID(c)

	var patch model.RiskParametersPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	rp, err := h.svc.UpdateRiskParameters(c.Request.Context(), caller, patch)
	if err != nil {
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "action", "update_risk_parameters")
	c.JSON(http.StatusOK, rp)
}
