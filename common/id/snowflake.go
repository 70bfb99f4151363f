package id

import (
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	mu   sync.Mutex
	node *snowflake.Node
)

// Init initializes the Snowflake node with the given node ID. Calling it again
// replaces the node, which lets the server and the terminal client pick
// different node IDs in the same process during tests.
func Init(nodeID int64) error {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return err
	}
	mu.Lock()
	node = n
	mu.Unlock()
	return nil
}

// New generates a new time-ordered int64 ID. Falls back to node 0 when Init
// was never called.
func New() int64 {
	mu.Lock()
	defer mu.Unlock()
	if node == nil {
		node, _ = snowflake.NewNode(0)
	}
	return node.Generate().Int64()
}

// Format renders an ID for headers.
func Format(id int64) string {
	return strconv.FormatInt(id, 10)
}
