package portal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ashureev/sunbrief/internal/domain"
)

type wireRecord struct {
	Timestamp     string   `json:"timestamp"`
	DeliveredKwh  *float64 `json:"deliveredKwh"`
	CumulativeKwh *float64 `json:"cumulativeKwh"`
}

// DecodeProduction parses the production feed, which the portal sends either
// as an array or as an object keyed by time. Object members keep the order
// in which they appear in the body.
func DecodeProduction(raw []byte, loc *time.Location) ([]domain.ProductionRecord, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []domain.ProductionRecord{}, nil
	}

	var wire []wireRecord
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, fmt.Errorf("%w: production array: %v", ErrMalformedResponse, err)
		}
	case '{':
		var err error
		wire, err = decodeOrderedObject(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: production object: %v", ErrMalformedResponse, err)
		}
	default:
		return nil, fmt.Errorf("%w: unexpected production payload", ErrMalformedResponse)
	}

	records := make([]domain.ProductionRecord, 0, len(wire))
	for i, w := range wire {
		record, err := w.toRecord(loc)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrMalformedResponse, i, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func decodeOrderedObject(raw []byte) ([]wireRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil { // opening brace
		return nil, err
	}

	var out []wireRecord
	for dec.More() {
		if _, err := dec.Token(); err != nil { // member key
			return nil, err
		}
		var w wireRecord
		if err := dec.Decode(&w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if _, err := dec.Token(); err != nil { // closing brace
		return nil, err
	}
	return out, nil
}

func (w wireRecord) toRecord(loc *time.Location) (domain.ProductionRecord, error) {
	day, err := normalizeDate(w.Timestamp)
	if err != nil {
		return domain.ProductionRecord{}, fmt.Errorf("timestamp: %w", err)
	}
	ts, err := time.ParseInLocation(domain.DateLayout, day, loc)
	if err != nil {
		return domain.ProductionRecord{}, fmt.Errorf("timestamp: %w", err)
	}

	record := domain.ProductionRecord{Timestamp: ts}
	if w.DeliveredKwh != nil {
		record.DeliveredKwh = *w.DeliveredKwh
	}
	if w.CumulativeKwh != nil {
		record.CumulativeKwh = *w.CumulativeKwh
	}
	return record, nil
}
