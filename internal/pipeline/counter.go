package pipeline

import (
	"strconv"
	"sync/atomic"
)

// entryIDPrefix is the fixed prefix of stored entry ids.
const entryIDPrefix = "index"

// EntryCounter hands out the strictly increasing entry sequence for one
// indexing run. Every indexer owns its own counter; numbering is shared by
// all documents in the run regardless of which worker processes them.
type EntryCounter struct {
	n atomic.Int64
}

// NewEntryCounter creates a counter that continues numbering after start.
// A start of 0 makes the first id "index1".
func NewEntryCounter(start int64) *EntryCounter {
	c := &EntryCounter{}
	c.n.Store(start)
	return c
}

// Next reserves the next sequence number and returns its entry id.
func (c *EntryCounter) Next() string {
	return EntryID(c.n.Add(1))
}

// Last returns the highest sequence number handed out so far.
func (c *EntryCounter) Last() int64 {
	return c.n.Load()
}

// EntryID formats the entry id for sequence number n.
func EntryID(n int64) string {
	return entryIDPrefix + strconv.FormatInt(n, 10)
}
