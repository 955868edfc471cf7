package segment

import (
	"strconv"
	"sync/atomic"
)

// Generator issues segment IDs unique within the process. Numbers increase
// across sessions so a replaced session never reuses an ID.
type Generator struct {
	issued atomic.Uint64
}

func New() *Generator {
	return &Generator{}
}

// Next returns "<sessionKey>-seg-<n>".
func (g *Generator) Next(sessionKey string) string {
	return sessionKey + "-seg-" + strconv.FormatUint(g.issued.Add(1), 10)
}

// Issued reports how many IDs have been handed out.
func (g *Generator) Issued() uint64 {
	return g.issued.Load()
}
