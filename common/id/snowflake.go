package id

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// Node IDs per binary. Envelope IDs only need to be unique per producer, but
// keeping them distinct across binaries makes log correlation unambiguous.
const (
	NodeServer int64 = 1
	NodeWorker int64 = 2
)

var (
	mu   sync.RWMutex
	node *snowflake.Node
)

// Init configures the process-wide generator. Calling it again replaces the
// node, which tests rely on.
func Init(nodeID int64) error {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return fmt.Errorf("creating snowflake node %d: %w", nodeID, err)
	}

	mu.Lock()
	node = n
	mu.Unlock()
	return nil
}

// New returns a time-ordered unique int64. It panics if Init was never called.
func New() int64 {
	mu.RLock()
	n := node
	mu.RUnlock()

	if n == nil {
		panic("id: generator used before Init")
	}
	return n.Generate().Int64()
}
