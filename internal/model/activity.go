package model

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// ActivityItem is the canonical form of one GitHub action. Meta values are
// restricted to strings, numbers, booleans and nil.
type ActivityItem struct {
	SourceEventType string         `json:"sourceEventType" validate:"required"`
	ActionCreated   time.Time      `json:"actionCreated"`
	ID              string         `json:"id" validate:"required"`
	Link            string         `json:"link"`
	RepoID          string         `json:"repoId"`
	RepoName        string         `json:"repoName"`
	Meta            map[string]any `json:"meta"`
}

// SameAction reports whether two items describe the same source action.
// IDs are only unique within an event type.
func (a ActivityItem) SameAction(other ActivityItem) bool {
	return a.SourceEventType == other.SourceEventType && a.ID == other.ID
}

// QueueEnvelope is the unit handed from ingress to the aggregator.
type QueueEnvelope struct {
	EnvelopeID   int64        `json:"envelopeId,omitempty"`
	PartitionKey string       `json:"partitionKey" validate:"required"`
	Type         string       `json:"type" validate:"required"`
	Data         ActivityItem `json:"data"`
	ReceivedAt   time.Time    `json:"receivedAt"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (e QueueEnvelope) Validate() error {
	return validate.Struct(e)
}

// EnvelopeType builds the bucket type for an event. Events whose allow-list
// is the wildcard have no meaningful action and repeat the event name.
func EnvelopeType(event, action string, wildcard bool) string {
	if wildcard || action == "" {
		return event + "." + event
	}
	return event + "." + action
}
