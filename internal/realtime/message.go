package realtime

import (
	"github.com/goccy/go-json"

	"github.com/sappyoak/sappyoak-site-functions/internal/model"
)

// LiveMessage is what websocket clients receive for every merge.
type LiveMessage struct {
	Target    string            `json:"target"`
	Arguments []model.Broadcast `json:"arguments"`
}

// EncodeLiveMessage wraps a published broadcast payload for the websocket
// clients listening on target.
func EncodeLiveMessage(target string, payload []byte) ([]byte, error) {
	var broadcast model.Broadcast
	if err := json.Unmarshal(payload, &broadcast); err != nil {
		return nil, err
	}
	return json.Marshal(LiveMessage{
		Target:    target,
		Arguments: []model.Broadcast{broadcast},
	})
}
