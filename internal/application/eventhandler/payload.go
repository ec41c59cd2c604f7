// Package eventhandler содержит обработчики доменных событий.
//
// События могут прийти как из локальной шины (типизированные значения),
// так и из Redis (payload после JSON: числа - float64, время - строка
// RFC3339). Поэтому обработчики читают только Payload() через помощники
// ниже и не приводят событие к конкретному типу.
package eventhandler

import (
	"time"
)

func payloadString(p map[string]interface{}, key string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return ""
}

func payloadInt(p map[string]interface{}, key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func payloadFloat(p map[string]interface{}, key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

func payloadTime(p map[string]interface{}, key string) (time.Time, bool) {
	switch v := p[key].(type) {
	case time.Time:
		return v, !v.IsZero()
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		return t, err == nil
	default:
		return time.Time{}, false
	}
}
