package broker

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// Fake is an in-memory Broker for tests: deterministic, no network, and
// lets a test script the positions/account it returns. Broker order ids
// are assigned in sequence: B1, B2, ...
type Fake struct {
	mu         sync.Mutex
	nextID     int
	SubmitErr  error
	OpenOrders []OpenOrder
	Positions  []BrokerPosition
	Account    AccountSnapshot
	Submitted  []OrderSpec
	Cancelled  []string
}

func NewFake() *Fake { return &Fake{} }

func (f *Fake) Submit(_ context.Context, spec OrderSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return "", f.SubmitErr
	}
	f.nextID++
	f.Submitted = append(f.Submitted, spec)
	return "B" + decimal.NewFromInt(int64(f.nextID)).String(), nil
}

func (f *Fake) Cancel(_ context.Context, brokerOrderID string) (Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Cancelled = append(f.Cancelled, brokerOrderID)
	return Ack{Accepted: true}, nil
}

func (f *Fake) ListOpenOrders(context.Context) ([]OpenOrder, error) {
	return f.OpenOrders, nil
}

func (f *Fake) ListPositions(context.Context) ([]BrokerPosition, error) {
	return f.Positions, nil
}

func (f *Fake) GetAccount(context.Context) (AccountSnapshot, error) {
	return f.Account, nil
}
