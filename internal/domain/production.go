package domain

import (
	"time"
)

// ProductionRecord is one day of solar production as reported by the portal.
type ProductionRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	DeliveredKwh  float64   `json:"deliveredKwh"`
	CumulativeKwh float64   `json:"cumulativeKwh"`
}

// Date returns the record's calendar date formatted with DateLayout.
func (r ProductionRecord) Date() string {
	return r.Timestamp.Format(DateLayout)
}

// EquivalencyEntry translates an energy quantity into a real-world unit.
type EquivalencyEntry struct {
	Category    string  `json:"category"`
	Value       float64 `json:"value"`
	Description string  `json:"description"`
}
