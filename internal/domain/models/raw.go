package models

import "time"

// RawMarketRecord is the external input for one time bucket: already-fetched
// flow/OHLCV/open-interest/news/score values keyed by source field name.
// Fields may be missing; values are coerced to float64 by the normalizer.
type RawMarketRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Symbol    string         `json:"symbol"`
	Fields    map[string]any `json:"fields"`
}

// Has reports whether a source field is present.
func (r RawMarketRecord) Has(field string) bool {
	_, ok := r.Fields[field]
	return ok
}
