package observability

import "strings"

const redactedValue = "[REDACTED]"

// RedactValue walks value and masks anything under a sensitive key name.
// It is applied to log payloads, never to data written to the transaction
// log or the position store — those need the real numbers.
func RedactValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactMap(typed)
	case []any:
		return redactSlice(typed)
	default:
		return value
	}
}

func redactMap(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		if isSensitiveKey(key) {
			out[key] = redactedValue
			continue
		}
		out[key] = RedactValue(value)
	}
	return out
}

func redactSlice(input []any) []any {
	out := make([]any, len(input))
	for i, value := range input {
		out[i] = RedactValue(value)
	}
	return out
}

var sensitiveKeys = []string{
	"account_number", "api_key", "api_secret", "token", "password",
	"buying_power", "net_liquidation",
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, candidate := range sensitiveKeys {
		if lower == candidate {
			return true
		}
	}
	return false
}
