package archive

import "sync/atomic"

// Stats holds processing counters. The zero value is ready to use.
type Stats struct {
	DirectoriesProcessed  int
	CompressedFilesFound  int
	SuccessfulExtractions int
	FailedExtractions     int
}

// Add returns the field-wise sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		DirectoriesProcessed:  s.DirectoriesProcessed + o.DirectoriesProcessed,
		CompressedFilesFound:  s.CompressedFilesFound + o.CompressedFilesFound,
		SuccessfulExtractions: s.SuccessfulExtractions + o.SuccessfulExtractions,
		FailedExtractions:     s.FailedExtractions + o.FailedExtractions,
	}
}

// Counters tracks per-extractor outcomes. Safe for concurrent use.
type Counters struct {
	success atomic.Int64
	failure atomic.Int64
}

// Success records one successful extraction.
func (c *Counters) Success() { c.success.Add(1) }

// Failure records one failed extraction.
func (c *Counters) Failure() { c.failure.Add(1) }

// Snapshot returns the current outcome counts.
func (c *Counters) Snapshot() Stats {
	return Stats{
		SuccessfulExtractions: int(c.success.Load()),
		FailedExtractions:     int(c.failure.Load()),
	}
}
