package influx

import (
	"context"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	simulation "solarflow-cloud/internal/simulation/domain"
)

type recordingWriter struct {
	points []*write.Point
}

func (w *recordingWriter) WritePoint(_ context.Context, point ...*write.Point) error {
	w.points = append(w.points, point...)
	return nil
}

func TestMirrorWritesTaggedPoint(t *testing.T) {
	writer := &recordingWriter{}
	m := &Mirror{writer: writer}
	ts := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

	err := m.Publish(context.Background(), simulation.EnergyReading{
		SubscriberID:      "sub-9",
		Timestamp:         ts,
		SolarGenerationKW: 1.25,
		GridImportKW:      0.4,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(writer.points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(writer.points))
	}
	point := writer.points[0]
	if point.Name() != Measurement {
		t.Fatalf("unexpected measurement %s", point.Name())
	}
	if !point.Time().Equal(ts) {
		t.Fatalf("unexpected time %s", point.Time())
	}
	tags := point.TagList()
	if len(tags) != 1 || tags[0].Key != "subscriber_id" || tags[0].Value != "sub-9" {
		t.Fatalf("unexpected tags %+v", tags)
	}
	found := false
	for _, field := range point.FieldList() {
		if field.Key == "solar_generation_kw" {
			found = true
			if field.Value != 1.25 {
				t.Fatalf("unexpected solar field %v", field.Value)
			}
		}
	}
	if !found {
		t.Fatalf("solar field missing")
	}
}

func TestNewMirrorValidatesConfig(t *testing.T) {
	if _, err := NewMirror(context.Background(), Config{URL: "http://localhost:8086"}); err == nil {
		t.Fatalf("expected config error")
	}
}
