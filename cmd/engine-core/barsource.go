package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"execution-core/internal/runtime"

	"github.com/shopspring/decimal"
)

// jsonlBar mirrors the one-object-per-line wire shape the rest of this
// module uses for its own durable records. A feed external to the core
// writes bars in this shape;
// the core only ever reads them.
type jsonlBar struct {
	Symbol string          `json:"symbol"`
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// JSONLBarSource reads one bar per line from an already-open reader.
// Real market data ingestion is outside this core's scope (spec's
// strategy/signal-generation Non-goal); this is the seam a live feed
// adapter plugs into.
type JSONLBarSource struct {
	scanner *bufio.Scanner
}

func NewJSONLBarSource(r io.Reader) *JSONLBarSource {
	return &JSONLBarSource{scanner: bufio.NewScanner(r)}
}

func (s *JSONLBarSource) NextBar(ctx context.Context) (runtime.Bar, bool, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return runtime.Bar{}, false, err
		}
		return runtime.Bar{}, false, nil
	}

	var b jsonlBar
	if err := json.Unmarshal(s.scanner.Bytes(), &b); err != nil {
		return runtime.Bar{}, false, fmt.Errorf("decode bar: %w", err)
	}
	return runtime.Bar{
		Symbol: b.Symbol,
		Time:   b.Time,
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	}, true, nil
}

// openBarFeed returns stdin when path is "-" or empty, otherwise opens
// path for reading. The caller is responsible for closing the result
// when it is a real file.
func openBarFeed(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}
