package rabbitmq

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AttemptHeader counts how many times a message went through the retry queue.
const AttemptHeader = "x-attempt"

func DecodeOrphan(body []byte) (OrphanMessage, error) {
	var m OrphanMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return OrphanMessage{}, err
	}
	if strings.TrimSpace(m.StoragePath) == "" {
		return OrphanMessage{}, errors.New("storage_path is required")
	}
	return m, nil
}

// Attempt reads AttemptHeader from a delivery; a missing header is attempt 0.
func Attempt(headers amqp.Table) int {
	switch v := headers[AttemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// RetryDelay backs off linearly: 5s, 10s, 15s...
func RetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return time.Duration(attempt+1) * 5 * time.Second
}

func formatExpiration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return strconv.FormatInt(ms, 10)
}
