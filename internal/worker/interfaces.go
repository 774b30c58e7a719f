package worker

import (
	"context"
	"time"

	"github.com/sappyoak/sappyoak-site-functions/internal/queue"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Claim(ctx context.Context, minIdle time.Duration, count int64) ([]queue.Message, error)
	Delete(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}
