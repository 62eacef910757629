package kafka

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/config"
	"github.com/couchcryptid/wildfire-risk-etl/internal/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2025, 8, 14, 6, 0, 5, 0, time.UTC)
	p := output.Payload{
		GeneratedAt:  now,
		ForecastDate: time.Date(2025, 8, 14, 0, 0, 0, 0, time.UTC),
		Scorer:       "formula",
		Threshold:    0.5,
		TotalCells:   2,
		HighRisk:     1,
		Heat:         []output.HeatPoint{{Lat: 40.5, Lon: -111.9, Score: 0.7}, {Lat: 40.6, Lon: -111.9, Score: 0.2}},
	}

	msg, err := serializeToMessage(p)
	require.NoError(t, err)

	assert.Equal(t, []byte("2025-08-14"), msg.Key)
	assert.Len(t, msg.Headers, 2)
	assert.Equal(t, "scorer", msg.Headers[0].Key)
	assert.Equal(t, []byte("formula"), msg.Headers[0].Value)
	assert.Equal(t, "generated_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)

	var decoded output.Payload
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, p.Heat, decoded.Heat)
	assert.Equal(t, 1, decoded.HighRisk)
}

func TestNewWriter(t *testing.T) {
	cfg := &config.Config{KafkaBrokers: []string{"broker-1:9092"}, KafkaSinkTopic: "wildfire-risk-payloads"}
	w := NewWriter(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Equal(t, "kafka", w.Name())
	assert.Equal(t, "wildfire-risk-payloads", w.writer.Topic)
	assert.Equal(t, "broker-1:9092", w.writer.Addr.String())
	require.NoError(t, w.Close())
}
