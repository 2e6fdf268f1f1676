package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/datafeed/internal/domain"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec versions stored in each row's schema_version column. Bump whenever
// the payload layout or the normalization semantics feeding it change; a
// version mismatch reads as a cache miss.
const (
	priceHistoryCodecVersion = 1
	fundamentalsCodecVersion = 1
)

// cachedBar is the compact storage form of a domain.Bar. Short msgpack keys
// keep multi-year daily series small.
type cachedBar struct {
	Unix     int64    `msgpack:"t"`
	Open     float64  `msgpack:"o"`
	High     float64  `msgpack:"h"`
	Low      float64  `msgpack:"l"`
	Close    float64  `msgpack:"c"`
	AdjClose *float64 `msgpack:"a,omitempty"`
	Volume   int64    `msgpack:"v"`
}

func encodeBars(bars []domain.Bar) ([]byte, error) {
	compact := make([]cachedBar, len(bars))
	for i, b := range bars {
		compact[i] = cachedBar{
			Unix:     b.Date.Unix(),
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			AdjClose: b.AdjClose,
			Volume:   b.Volume,
		}
	}

	data, err := msgpack.Marshal(compact)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bars: %w", err)
	}
	return data, nil
}

func decodeBars(data []byte) ([]domain.Bar, error) {
	var compact []cachedBar
	if err := msgpack.Unmarshal(data, &compact); err != nil {
		return nil, fmt.Errorf("failed to decode bars: %w", err)
	}

	bars := make([]domain.Bar, len(compact))
	for i, c := range compact {
		bars[i] = domain.Bar{
			Date:     time.Unix(c.Unix, 0).UTC(),
			Open:     c.Open,
			High:     c.High,
			Low:      c.Low,
			Close:    c.Close,
			AdjClose: c.AdjClose,
			Volume:   c.Volume,
		}
	}
	return bars, nil
}

func encodeFundamentals(f *domain.Fundamentals) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fundamentals: %w", err)
	}
	return data, nil
}

func decodeFundamentals(data []byte) (*domain.Fundamentals, error) {
	var f domain.Fundamentals
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode fundamentals: %w", err)
	}
	return &f, nil
}
