package common

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewULID returns a 26-char, time-ordered identifier for table rows.
func NewULID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), ulid.DefaultEntropy())
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// RandomFileName returns "<uuid>.<ext>".
func RandomFileName(ext string) string {
	return uuid.NewString() + "." + ext
}
