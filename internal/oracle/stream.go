package oracle

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/kalefund/fundgate/internal/fixedpoint"
	"github.com/kalefund/fundgate/internal/model"
	"github.com/kalefund/fundgate/internal/pkg/logger"
)

// FeedStream consumes a websocket price feed and pushes every tick into
// the oracle service. The upstream quotes decimal USD prices; they are
// converted to the 1e7 fixed-point scale before caching.
type FeedStream struct {
	url     string
	service *Service
}

func NewFeedStream(url string, service *Service) *FeedStream {
	return &FeedStream{url: url, service: service}
}

type feedTick struct {
	Asset     string `json:"asset"`
	Price     string `json:"price"` // decimal USD, e.g. "43000.25"
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source"`
}

// Start runs the read loop until ctx is cancelled, redialing with a
// flat backoff on any connection failure.
func (s *FeedStream) Start(ctx context.Context) {
	go func() {
		for {
			if ctx.Err() != nil {
				return
			}
			if err := s.connectAndRead(ctx); err != nil {
				logger.Error("price feed disconnected", "url", s.url, "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}()
}

func (s *FeedStream) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]interface{}{
		"type":   "subscribe",
		"assets": model.SupportedAssets(),
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	logger.Info("price feed connected", "url", s.url)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handleMessage(ctx, msg)
	}
}

func (s *FeedStream) handleMessage(ctx context.Context, raw []byte) {
	var ticks []feedTick
	if err := json.Unmarshal(raw, &ticks); err != nil {
		var single feedTick
		if err2 := json.Unmarshal(raw, &single); err2 != nil {
			logger.Warn("unparseable feed message", "error", err)
			return
		}
		ticks = []feedTick{single}
	}

	for _, tick := range ticks {
		asset, ok := model.ParseAsset(tick.Asset)
		if !ok {
			continue
		}
		price, err := scalePrice(tick.Price)
		if err != nil {
			logger.Warn("bad price in feed tick", "asset", tick.Asset, "price", tick.Price, "error", err)
			continue
		}
		ts := tick.Timestamp
		if ts == 0 {
			ts = s.service.Now().Unix()
		}
		source := tick.Source
		if source == "" {
			source = SourceFeed
		}
		if _, err := s.service.ApplyFeed(ctx, &model.PriceFeed{
			Asset:         asset,
			PriceUSD:      price,
			Timestamp:     ts,
			ConfidenceBps: feedConfidenceBps,
			Source:        source,
		}); err != nil {
			logger.LogError(ctx, err, "feed tick rejected", "asset", tick.Asset)
		}
	}
}

// scalePrice converts a decimal USD string to 1e7 fixed-point,
// truncating excess precision.
func scalePrice(s string) (*model.Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	scaled := d.Mul(decimal.NewFromInt(fixedpoint.PriceScale)).Truncate(0)
	v := new(big.Int)
	v.SetString(scaled.String(), 10)
	if err := fixedpoint.CheckRange(v); err != nil {
		return nil, err
	}
	return model.NewAmountFromBig(v), nil
}
