package protection

import (
	"fmt"
	"time"

	"execution-core/internal/positionstore"
)

// Manager runs every enabled Protection and blocks admission if any one
// of them is active.
type Manager struct {
	protections []Protection
}

// NewManager composes protections into a Manager. The order they are
// passed in is the order they are evaluated and, on a tie, the order
// reported.
func NewManager(protections ...Protection) *Manager {
	return &Manager{protections: protections}
}

// Check runs every protection against symbol and returns the first
// blocking Status found, or an allowed Status if none block.
func (m *Manager) Check(symbol string, recentClosedTrades []positionstore.Trade, now time.Time) (Status, error) {
	for _, p := range m.protections {
		status, err := p.Evaluate(symbol, recentClosedTrades, now)
		if err != nil {
			return Status{}, fmt.Errorf("protection: %s: %w", p.Name(), err)
		}
		if !status.Allowed {
			return status, nil
		}
	}
	return allowed(), nil
}
