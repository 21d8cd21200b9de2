package venue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"goldbot/internal/domain"
	"goldbot/internal/util"
)

// Compile-time interface check.
var _ Venue = (*Alpaca)(nil)

// Alpaca implements Venue over the Alpaca trading and market-data APIs.
//
// Alpaca aggregates positions per symbol rather than per ticket, so
// per-ticket liveness is tracked locally: a ticket opened here stays live
// until it is closed here or its symbol no longer carries a position at the
// venue.
type Alpaca struct {
	trading *alpaca.Client
	data    *marketdata.Client
	limiter *util.RateLimiter

	mu        sync.Mutex
	posSymbol map[string]string // position ticket -> symbol
}

// NewAlpaca creates an Alpaca venue from API credentials. requestsPerMin
// caps the request rate against the venue.
func NewAlpaca(apiKey, apiSecret, baseURL, dataURL string, requestsPerMin int) *Alpaca {
	tradingOpts := alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if baseURL != "" {
		tradingOpts.BaseURL = baseURL
	}
	dataOpts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		dataOpts.BaseURL = dataURL
	}

	return &Alpaca{
		trading:   alpaca.NewClient(tradingOpts),
		data:      marketdata.NewClient(dataOpts),
		limiter:   util.NewRateLimiter(requestsPerMin),
		posSymbol: make(map[string]string),
	}
}

// Name returns "alpaca".
func (a *Alpaca) Name() string { return "alpaca" }

// classify maps an Alpaca API error to the venue error taxonomy: 4xx
// responses are rejections except for timeouts and rate limits, everything
// else is connectivity and retried.
func classify(op string, err error) *Error {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 &&
			apiErr.StatusCode != 408 && apiErr.StatusCode != 429 {
			return PermanentErr(op, err)
		}
	}
	return TransientErr(op, err)
}

// GetTick returns the latest quote for the symbol.
func (a *Alpaca) GetTick(ctx context.Context, symbol string) (domain.Tick, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return domain.Tick{}, TransientErr("get tick", err)
	}
	q, err := a.data.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{})
	if err != nil {
		return domain.Tick{}, classify("get tick", err)
	}
	return domain.Tick{Bid: q.BidPrice, Ask: q.AskPrice, Time: q.Timestamp}, nil
}

func alpacaSide(side domain.Side) alpaca.Side {
	if side == domain.SideBuy {
		return alpaca.Buy
	}
	return alpaca.Sell
}

// marketFillPrice resolves the price to record for a market entry: the
// reported average fill when the venue has one, otherwise the side of the
// quote the order executed against.
func marketFillPrice(filled *decimal.Decimal, side domain.Side, tick domain.Tick) float64 {
	if filled != nil {
		if f, _ := filled.Float64(); f > 0 {
			return f
		}
	}
	return tick.PriceFor(side)
}

// OpenMarket submits a bracket market order carrying the stop-loss and
// take-profit legs and returns the entry ticket and fill price.
func (a *Alpaca) OpenMarket(ctx context.Context, symbol string, side domain.Side, volume, sl, tp float64) (string, float64, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", 0, TransientErr("open market", err)
	}

	qty := decimal.NewFromFloat(volume)
	slPrice := decimal.NewFromFloat(sl)
	tpPrice := decimal.NewFromFloat(tp)

	ord, err := a.trading.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:        symbol,
		Qty:           &qty,
		Side:          alpacaSide(side),
		Type:          alpaca.Market,
		TimeInForce:   alpaca.GTC,
		OrderClass:    alpaca.Bracket,
		TakeProfit:    &alpaca.TakeProfit{LimitPrice: &tpPrice},
		StopLoss:      &alpaca.StopLoss{StopPrice: &slPrice},
		ClientOrderID: uuid.NewString(),
	})
	if err != nil {
		return "", 0, classify("open market", err)
	}

	// A just-accepted market order usually reports no average fill price
	// yet; the tradable side of the current quote stands in so the open
	// price is never recorded as zero.
	var tick domain.Tick
	if ord.FilledAvgPrice == nil || ord.FilledAvgPrice.IsZero() {
		if q, qerr := a.data.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{}); qerr == nil {
			tick = domain.Tick{Bid: q.BidPrice, Ask: q.AskPrice}
		}
	}
	fill := marketFillPrice(ord.FilledAvgPrice, side, tick)

	a.mu.Lock()
	a.posSymbol[ord.ID] = symbol
	a.mu.Unlock()

	return ord.ID, fill, nil
}

// OpenPending rests a bracket LIMIT or STOP order at price.
func (a *Alpaca) OpenPending(ctx context.Context, symbol string, side domain.Side, mode domain.ExecMode, volume, price, sl, tp float64) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", TransientErr("open pending", err)
	}

	qty := decimal.NewFromFloat(volume)
	entry := decimal.NewFromFloat(price)
	slPrice := decimal.NewFromFloat(sl)
	tpPrice := decimal.NewFromFloat(tp)

	req := alpaca.PlaceOrderRequest{
		Symbol:        symbol,
		Qty:           &qty,
		Side:          alpacaSide(side),
		TimeInForce:   alpaca.GTC,
		OrderClass:    alpaca.Bracket,
		TakeProfit:    &alpaca.TakeProfit{LimitPrice: &tpPrice},
		StopLoss:      &alpaca.StopLoss{StopPrice: &slPrice},
		ClientOrderID: uuid.NewString(),
	}
	switch mode {
	case domain.ExecLimit:
		req.Type = alpaca.Limit
		req.LimitPrice = &entry
	case domain.ExecStop:
		req.Type = alpaca.Stop
		req.StopPrice = &entry
	default:
		return "", PermanentErr("open pending", fmt.Errorf("mode %s is not a pending mode", mode))
	}

	ord, err := a.trading.PlaceOrder(req)
	if err != nil {
		return "", classify("open pending", err)
	}

	a.mu.Lock()
	a.posSymbol[ord.ID] = symbol
	a.mu.Unlock()

	return ord.ID, nil
}

// ModifyStopLoss replaces the stop leg of the bracket the ticket belongs to.
func (a *Alpaca) ModifyStopLoss(ctx context.Context, ticket string, newSL float64) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return TransientErr("modify stop loss", err)
	}

	ord, err := a.trading.GetOrder(ticket)
	if err != nil {
		return classify("modify stop loss", err)
	}

	slPrice := decimal.NewFromFloat(newSL)
	for i := range ord.Legs {
		leg := &ord.Legs[i]
		if leg.Type != alpaca.Stop {
			continue
		}
		if _, err := a.trading.ReplaceOrder(leg.ID, alpaca.ReplaceOrderRequest{StopPrice: &slPrice}); err != nil {
			return classify("modify stop loss", err)
		}
		return nil
	}
	return PermanentErr("modify stop loss", fmt.Errorf("order %s has no stop leg", ticket))
}

// ClosePosition closes volume of the symbol the ticket was opened for.
func (a *Alpaca) ClosePosition(ctx context.Context, ticket string, _ domain.Side, volume float64) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return TransientErr("close position", err)
	}

	a.mu.Lock()
	symbol, ok := a.posSymbol[ticket]
	a.mu.Unlock()
	if !ok {
		return PermanentErr("close position", fmt.Errorf("unknown ticket %s", ticket))
	}

	qty := decimal.NewFromFloat(volume)
	if _, err := a.trading.ClosePosition(symbol, alpaca.ClosePositionRequest{Qty: qty}); err != nil {
		return classify("close position", err)
	}

	a.mu.Lock()
	delete(a.posSymbol, ticket)
	a.mu.Unlock()
	return nil
}

// CancelOrder cancels a resting order.
func (a *Alpaca) CancelOrder(ctx context.Context, ticket string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return TransientErr("cancel order", err)
	}
	if err := a.trading.CancelOrder(ticket); err != nil {
		return classify("cancel order", err)
	}
	a.mu.Lock()
	delete(a.posSymbol, ticket)
	a.mu.Unlock()
	return nil
}

// OpenOrderTickets lists resting order ids at the venue.
func (a *Alpaca) OpenOrderTickets(ctx context.Context) ([]string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, TransientErr("list orders", err)
	}
	orders, err := a.trading.GetOrders(alpaca.GetOrdersRequest{Status: "open"})
	if err != nil {
		return nil, classify("list orders", err)
	}
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out, nil
}

// OpenPositionTickets returns the locally tracked tickets whose symbol still
// carries a position at the venue.
func (a *Alpaca) OpenPositionTickets(ctx context.Context) ([]string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, TransientErr("list positions", err)
	}
	positions, err := a.trading.GetPositions()
	if err != nil {
		return nil, classify("list positions", err)
	}

	liveSymbols := make(map[string]bool, len(positions))
	for _, p := range positions {
		liveSymbols[p.Symbol] = true
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for ticket, symbol := range a.posSymbol {
		if liveSymbols[symbol] {
			out = append(out, ticket)
		}
	}
	return out, nil
}
