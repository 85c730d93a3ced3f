package domain

// OutcomeCounts tallies calls by outcome inside one time window.
// Total counts every call in the window, including still-active ones,
// so Total >= Missed+Completed.
type OutcomeCounts struct {
	Total     int `json:"total"`
	Missed    int `json:"missed"`
	Completed int `json:"completed"`
}

// CallStatistics is a derived, non-authoritative aggregate over the
// retained call log. It is recomputed in full on every successful sync
// and never persisted independently of the log it came from.
type CallStatistics struct {
	// Today covers calls since local midnight.
	Today OutcomeCounts `json:"today"`
	// Week covers calls since the most recent Sunday 00:00 local time.
	Week OutcomeCounts `json:"week"`
}
