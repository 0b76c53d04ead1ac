package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kalefund/fundgate/internal/middleware"
	"github.com/kalefund/fundgate/internal/model"
	"github.com/kalefund/fundgate/internal/oracle"
	"github.com/kalefund/fundgate/internal/pkg/apperrors"
	"github.com/kalefund/fundgate/internal/service"
)

// PoolSource reads the fund's per-asset custody balances, used as the
// liquidity side of price-impact quotes.
type PoolSource interface {
	GetPoolBalances(ctx context.Context) (map[model.Asset]*model.Amount, error)
}

type OracleHandler struct {
	oracle *oracle.Service
	svc    *service.FundService
	pools  PoolSource
}

func NewOracleHandler(o *oracle.Service, svc *service.FundService, pools PoolSource) *OracleHandler {
	return &OracleHandler{oracle: o, svc: svc, pools: pools}
}

func (h *OracleHandler) GetPrice(c *gin.Context) {
	asset, ok := model.ParseAsset(c.Param("asset"))
	if !ok {
		c.Error(apperrors.NewInvalidRequest("unknown asset " + c.Param("asset")))
		return
	}

	if c.Query("fresh") == "true" {
		feed, err := h.oracle.GetFreshPrice(c.Request.Context(), asset)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, feed)
		return
	}

	feed, err := h.oracle.GetPrice(c.Request.Context(), asset)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

func (h *OracleHandler) GetAllPrices(c *gin.Context) {
	agg, err := h.oracle.AggregatedPrices(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, agg)
}

func (h *OracleHandler) GetTWAP(c *gin.Context) {
	asset, ok := model.ParseAsset(c.Param("asset"))
	if !ok {
		c.Error(apperrors.NewInvalidRequest("unknown asset " + c.Param("asset")))
		return
	}
	window := int64(3600)
	if raw := c.Query("window"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			c.Error(apperrors.NewInvalidRequest("window must be a positive number of seconds"))
			return
		}
		window = parsed
	}

	price, err := h.oracle.TWAP(c.Request.Context(), asset, time.Duration(window)*time.Second)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset": asset, "twap_usd": price, "window_seconds": window})
}

// GetPriceImpact sizes a prospective trade against the asset's pool
// liquidity.
func (h *OracleHandler) GetPriceImpact(c *gin.Context) {
	asset, ok := model.ParseAsset(c.Param("asset"))
	if !ok {
		c.Error(apperrors.NewInvalidRequest("unknown asset " + c.Param("asset")))
		return
	}
	amount, err := model.ParseAmount(c.Query("amount"))
	if err != nil || amount.Sign() <= 0 {
		c.Error(apperrors.NewInvalidRequest("amount must be a positive integer"))
		return
	}

	pools, err := h.pools.GetPoolBalances(c.Request.Context())
	if err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}
	liquidity := pools[asset]
	c.JSON(http.StatusOK, gin.H{
		"asset":        asset,
		"trade_amount": amount,
		"liquidity":    liquidity,
		"impact_bps":   oracle.PriceImpact(amount.Big(), liquidity.Big()),
	})
}

// OverridePrice is the emergency admin path for pinning a price.
func (h *OracleHandler) OverridePrice(c *gin.Context) {
	caller := middleware.CallerID(c)
	asset, ok := model.ParseAsset(c.Param("asset"))
	if !ok {
		c.Error(apperrors.NewInvalidRequest("unknown asset " + c.Param("asset")))
		return
	}

	var req model.PriceOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	if err := h.svc.RequireAdmin(c.Request.Context(), caller); err != nil {
		c.Error(err)
		return
	}

	feed, err := h.oracle.EmergencyOverride(c.Request.Context(), asset, req.PriceUSD, req.Reason)
	if err != nil {
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "action", "price_override")
	middleware.AddAuditContext(c, "asset", string(asset))
	middleware.AddAuditContext(c, "reason", req.Reason)
	c.JSON(http.StatusOK, feed)
}
