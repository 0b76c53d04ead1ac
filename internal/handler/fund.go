package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kalefund/fundgate/internal/ledger"
	"github.com/kalefund/fundgate/internal/middleware"
	"github.com/kalefund/fundgate/internal/model"
	"github.com/kalefund/fundgate/internal/pkg/apperrors"
	"github.com/kalefund/fundgate/internal/service"
)

type FundHandler struct {
	svc    *service.FundService
	ledger *ledger.Ledger

	// defaultAsset fills in initialize requests that omit one.
	defaultAsset string
}

func NewFundHandler(svc *service.FundService, l *ledger.Ledger, defaultAsset string) *FundHandler {
	return &FundHandler{svc: svc, ledger: l, defaultAsset: defaultAsset}
}

func (h *FundHandler) Initialize(c *gin.Context) {
	caller := middleware.CallerID(c)

	var req model.InitializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	if req.SettlementAsset == "" {
		req.SettlementAsset = h.defaultAsset
	}

	cfg, err := h.svc.Initialize(c.Request.Context(), caller, &req)
	if err != nil {
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "action", "initialize")
	c.JSON(http.StatusCreated, cfg)
}

func (h *FundHandler) Deposit(c *gin.Context) {
	caller := middleware.CallerID(c)

	var req model.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	profile, err := model.ParseRiskProfile(req.RiskProfile)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	result, err := h.ledger.Deposit(c.Request.Context(), caller, req.Amount, profile, req.Referral)
	if err != nil {
		middleware.AddAuditContext(c, "error", err.Error())
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "action", "deposit")
	middleware.AddAuditContext(c, "amount", req.Amount.String())
	c.JSON(http.StatusOK, result)
}

func (h *FundHandler) Withdraw(c *gin.Context) {
	caller := middleware.CallerID(c)

	var req model.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	result, err := h.ledger.Withdraw(c.Request.Context(), caller, req.Amount)
	if err != nil {
		middleware.AddAuditContext(c, "error", err.Error())
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "action", "withdraw")
	middleware.AddAuditContext(c, "amount", req.Amount.String())
	c.JSON(http.StatusOK, result)
}

// GetAccount serves the caller's own account; admins may pass any
// participant id in the path.
func (h *FundHandler) GetAccount(c *gin.Context) {
	participant := c.Param("participant")
	if participant == "" {
		participant = middleware.CallerID(c)
	}

	acct, err := h.ledger.GetAccount(c.Request.Context(), participant)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

func (h *FundHandler) GetTotalLocked(c *gin.Context) {
	total, err := h.ledger.TotalLocked(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total_locked": total})
}

func (h *FundHandler) GetConfig(c *gin.Context) {
	cfg, err := h.svc.GetConfig(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *FundHandler) UpdateConfig(c *gin.Context) {
	caller := middleware.CallerID(c)

	var patch model.FundConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	cfg, err := h.svc.UpdateConfig(c.Request.Context(), caller, patch)
	if err != nil {
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "action", "update_config")
	c.JSON(http.StatusOK, cfg)
}

func (h *FundHandler) DistributeRewards(c *gin.Context) {
	caller := middleware.CallerID(c)

	var req model.DistributeRewardsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	distributed, err := h.svc.DistributeRewards(c.Request.Context(), caller, req.TotalRewards)
	if err != nil {
		middleware.AddAuditContext(c, "error", err.Error())
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "action", "distribute_rewards")
	middleware.AddAuditContext(c, "distributed", distributed.String())
	c.JSON(http.StatusOK, gin.H{"distributed": distributed})
}
