package portal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeProductionKeepsObjectOrder(t *testing.T) {
	// Keys deliberately not in lexical order.
	raw := []byte(`{
		"b": {"timestamp":"2024-05-03T00:00:00.000-10:00","deliveredKwh":3,"cumulativeKwh":6},
		"a": {"timestamp":"2024-05-01T00:00:00.000-10:00","deliveredKwh":1,"cumulativeKwh":1},
		"c": {"timestamp":"2024-05-02T00:00:00.000-10:00","deliveredKwh":2,"cumulativeKwh":3}
	}`)

	records, err := DecodeProduction(raw, time.UTC)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "2024-05-03", records[0].Date())
	assert.Equal(t, "2024-05-01", records[1].Date())
	assert.Equal(t, "2024-05-02", records[2].Date())
}

func TestDecodeProductionEmpty(t *testing.T) {
	for _, raw := range []string{"", "null", "{}", "[]"} {
		records, err := DecodeProduction([]byte(raw), time.UTC)
		require.NoError(t, err, raw)
		assert.Empty(t, records, raw)
	}
}

func TestDecodeProductionRejectsGarbage(t *testing.T) {
	for _, raw := range []string{`"nope"`, `{"a": 5}`, `[{"timestamp":"x"}]`} {
		_, err := DecodeProduction([]byte(raw), time.UTC)
		assert.ErrorIs(t, err, ErrMalformedResponse, raw)
	}
}
