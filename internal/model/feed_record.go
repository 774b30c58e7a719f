package model

import "time"

type PublishMode string

const (
	PublishModeInsert PublishMode = "INSERT"
	PublishModeUpdate PublishMode = "UPDATE"
)

const rowKeyDateLayout = "2006-01-02"

// FeedRecord is the day bucket for one envelope type. Actions are kept in
// arrival order and only ever appended to.
type FeedRecord struct {
	PartitionKey string         `json:"partitionKey"`
	RowKey       string         `json:"rowKey"`
	Actions      []ActivityItem `json:"actions"`
	Version      int64          `json:"version"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// RowKey is "<type>.<YYYY-MM-DD>" using the UTC calendar date of at.
func RowKey(envelopeType string, at time.Time) string {
	return envelopeType + "." + at.UTC().Format(rowKeyDateLayout)
}

// WithAction returns a copy of r with item appended. The receiver's slice
// is never shared with the result.
func (r FeedRecord) WithAction(item ActivityItem) FeedRecord {
	actions := make([]ActivityItem, 0, len(r.Actions)+1)
	actions = append(actions, r.Actions...)
	r.Actions = append(actions, item)
	return r
}

func (r FeedRecord) HasAction(item ActivityItem) bool {
	for _, existing := range r.Actions {
		if existing.SameAction(item) {
			return true
		}
	}
	return false
}

// Broadcast is published on the live channel after every merge.
type Broadcast struct {
	Entity      FeedRecord  `json:"entity"`
	PublishMode PublishMode `json:"publishMode"`
}
