package convert

import "fmt"

// ErrorRecord is one problem row, kept for the Errors sheet.
type ErrorRecord struct {
	Row     int
	RawRow  string
	Message string
}

// Collector is an append-only, arrival-ordered list of ErrorRecords.
// It performs no deduplication: a row that fails twice is recorded twice.
//
// A Collector belongs to one conversion and is not safe for concurrent use.
type Collector struct {
	records []ErrorRecord
	limit   int
	dropped int
}

// NewCollector returns a collector that keeps at most limit records.
// limit <= 0 means unbounded.
func NewCollector(limit int) *Collector {
	return &Collector{limit: limit}
}

// Record appends an error. Past the limit, records are only counted.
func (c *Collector) Record(row int, raw, message string) {
	if c.limit > 0 && len(c.records) >= c.limit {
		c.dropped++
		return
	}
	c.records = append(c.records, ErrorRecord{Row: row, RawRow: raw, Message: message})
}

// IsEmpty reports whether nothing was recorded or dropped.
func (c *Collector) IsEmpty() bool {
	return len(c.records) == 0 && c.dropped == 0
}

// Len returns the number of errors seen, including dropped ones.
func (c *Collector) Len() int {
	return len(c.records) + c.dropped
}

// Dropped returns how many records exceeded the limit.
func (c *Collector) Dropped() int {
	return c.dropped
}

// Drain returns the records in arrival order and empties the collector.
// If any were dropped, a trailing summary record with row 0 says how many.
func (c *Collector) Drain() []ErrorRecord {
	out := c.records
	if c.dropped > 0 {
		out = append(out, ErrorRecord{
			Message: fmt.Sprintf("%d further errors not recorded", c.dropped),
		})
	}
	c.records = nil
	c.dropped = 0
	return out
}
