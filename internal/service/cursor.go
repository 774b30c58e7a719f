package service

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

var ErrInvalidCursor = errors.New("invalid continuation token")

type cursor struct {
	RowKey string `json:"rk"`
}

// EncodeCursor makes an opaque token resuming after rowKey.
func EncodeCursor(rowKey string) string {
	payload, _ := json.Marshal(cursor{RowKey: rowKey})
	return base64.RawURLEncoding.EncodeToString(payload)
}

// DecodeCursor returns the row key a token resumes after.
func DecodeCursor(token string) (string, error) {
	payload, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	var c cursor
	if err := json.Unmarshal(payload, &c); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if c.RowKey == "" {
		return "", fmt.Errorf("%w: empty position", ErrInvalidCursor)
	}
	return c.RowKey, nil
}
