package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"execution-core/internal/order"

	"github.com/shopspring/decimal"
)

// HTTPAdapter is a reference Broker implementation talking to a generic
// JSON REST bridge, grounded on ib_adapter.go's IBClient shape but
// generalized past one vendor's wire format and onto decimal.Decimal
// quantities/prices.
type HTTPAdapter struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAdapter builds an adapter against baseURL with the same
// request timeout ib_adapter.go uses.
func NewHTTPAdapter(baseURL string) *HTTPAdapter {
	return &HTTPAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *HTTPAdapter) Submit(ctx context.Context, spec OrderSpec) (string, error) {
	body := map[string]any{
		"client_order_id": spec.ClientOrderID,
		"symbol":          spec.Symbol,
		"side":            string(spec.Side),
		"type":            string(spec.Type),
		"quantity":        spec.Quantity.String(),
	}
	if spec.LimitPrice != nil {
		body["limit_price"] = spec.LimitPrice.String()
	}

	var result struct {
		Success       bool   `json:"success"`
		BrokerOrderID string `json:"broker_order_id"`
		Message       string `json:"message"`
	}
	if err := a.post(ctx, "/api/v1/orders", body, &result); err != nil {
		return "", err
	}
	if !result.Success {
		return "", &Error{Transient: false, Err: fmt.Errorf("broker: order rejected: %s", result.Message)}
	}
	return result.BrokerOrderID, nil
}

func (a *HTTPAdapter) Cancel(ctx context.Context, brokerOrderID string) (Ack, error) {
	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	path := fmt.Sprintf("/api/v1/orders/%s/cancel", brokerOrderID)
	if err := a.post(ctx, path, nil, &result); err != nil {
		return Ack{}, err
	}
	return Ack{Accepted: result.Success, Message: result.Message}, nil
}

func (a *HTTPAdapter) ListOpenOrders(ctx context.Context) ([]OpenOrder, error) {
	var result struct {
		Success bool `json:"success"`
		Orders  []struct {
			BrokerOrderID string `json:"broker_order_id"`
			Symbol        string `json:"symbol"`
			Side          string `json:"side"`
			Type          string `json:"type"`
			FilledQty     string `json:"filled_qty"`
			AvgFillPrice  string `json:"avg_fill_price"`
			Status        string `json:"status"`
		} `json:"orders"`
	}
	if err := a.get(ctx, "/api/v1/orders/open", &result); err != nil {
		return nil, err
	}

	out := make([]OpenOrder, 0, len(result.Orders))
	for _, o := range result.Orders {
		filled, _ := decimal.NewFromString(o.FilledQty)
		avg, _ := decimal.NewFromString(o.AvgFillPrice)
		out = append(out, OpenOrder{
			BrokerOrderID: o.BrokerOrderID,
			Symbol:        o.Symbol,
			Side:          order.Side(o.Side),
			Type:          order.Type(o.Type),
			FilledQty:     filled,
			AvgFillPrice:  avg,
			Status:        o.Status,
		})
	}
	return out, nil
}

func (a *HTTPAdapter) ListPositions(ctx context.Context) ([]BrokerPosition, error) {
	var result struct {
		Success   bool `json:"success"`
		Positions []struct {
			Symbol   string `json:"symbol"`
			Quantity string `json:"quantity"`
		} `json:"positions"`
	}
	if err := a.get(ctx, "/api/v1/positions", &result); err != nil {
		return nil, err
	}

	out := make([]BrokerPosition, 0, len(result.Positions))
	for _, p := range result.Positions {
		qty, _ := decimal.NewFromString(p.Quantity)
		out = append(out, BrokerPosition{Symbol: p.Symbol, Quantity: qty})
	}
	return out, nil
}

func (a *HTTPAdapter) GetAccount(ctx context.Context) (AccountSnapshot, error) {
	var result struct {
		Success bool `json:"success"`
		Account struct {
			NetLiquidation string `json:"net_liquidation"`
			BuyingPower    string `json:"buying_power"`
			DayTradeCount  int    `json:"day_trade_count"`
		} `json:"account"`
	}
	if err := a.get(ctx, "/api/v1/account", &result); err != nil {
		return AccountSnapshot{}, err
	}

	netLiq, _ := decimal.NewFromString(result.Account.NetLiquidation)
	buyingPower, _ := decimal.NewFromString(result.Account.BuyingPower)
	return AccountSnapshot{
		NetLiquidation: netLiq,
		BuyingPower:    buyingPower,
		DayTradeCount:  result.Account.DayTradeCount,
		AsOf:           time.Now().UTC(),
	}, nil
}

func (a *HTTPAdapter) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return &Error{Transient: false, Err: fmt.Errorf("broker: build request: %w", err)}
	}
	return a.do(req, out)
}

func (a *HTTPAdapter) post(ctx context.Context, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &Error{Transient: false, Err: fmt.Errorf("broker: marshal request: %w", err)}
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, reader)
	if err != nil {
		return &Error{Transient: false, Err: fmt.Errorf("broker: build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req, out)
}

func (a *HTTPAdapter) do(req *http.Request, out any) error {
	resp, err := a.client.Do(req)
	if err != nil {
		// Network-level failure (timeout, connection refused): transient.
		return &Error{Transient: true, Err: fmt.Errorf("broker: request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		body, _ := io.ReadAll(resp.Body)
		return &Error{Transient: true, Err: fmt.Errorf("broker: status %d: %s", resp.StatusCode, body)}
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return &Error{Transient: false, Err: fmt.Errorf("broker: status %d: %s", resp.StatusCode, body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Transient: false, Err: fmt.Errorf("broker: decode response: %w", err)}
	}
	return nil
}
