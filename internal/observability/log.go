// Package observability provides the structured logging helpers shared by
// every execution-core component. It is deliberately thin: one JSON object
// per call on top of the standard library logger, no third-party logging
// core.
package observability

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"
)

var logger = log.New(os.Stdout, "", 0)

// RunInfo carries correlation ids that get stamped onto every log line for
// a given runtime cycle.
type RunInfo struct {
	RunID  string
	TaskID string
	Symbol string
}

type runInfoKey struct{}

// WithRunInfo attaches a RunInfo to ctx for downstream LogEvent calls.
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunInfoFromContext returns the RunInfo attached to ctx, or the zero value.
func RunInfoFromContext(ctx context.Context) RunInfo {
	if info, ok := ctx.Value(runInfoKey{}).(RunInfo); ok {
		return info
	}
	return RunInfo{}
}

// LogEvent writes one structured JSON line: timestamp, level, event name,
// any correlation ids on ctx, and the supplied fields. Fields under the
// "payload", "order" or "account" keys are redacted before serialization.
func LogEvent(ctx context.Context, level, event string, fields map[string]any) {
	payload := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": level,
		"event": event,
	}

	info := RunInfoFromContext(ctx)
	if info.RunID != "" {
		payload["run_id"] = info.RunID
	}
	if info.TaskID != "" {
		payload["task_id"] = info.TaskID
	}
	if info.Symbol != "" {
		payload["symbol"] = info.Symbol
	}

	for key, value := range normalizeFields(fields) {
		payload[key] = value
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("{\"level\":\"error\",\"event\":\"log_marshal_failed\",\"error\":%q}", err.Error())
		return
	}
	logger.Print(string(raw))
}

func normalizeFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		switch key {
		case "payload", "order", "account":
			out[key] = RedactValue(value)
			continue
		}
		if err, ok := value.(error); ok {
			out[key] = err.Error()
			continue
		}
		out[key] = value
	}
	return out
}
