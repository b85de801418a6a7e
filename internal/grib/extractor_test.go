package grib

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/weatheredge/nwp-signal-engine/internal/model"
)

func TestExtractBatchDecodesWindAndTemperature(t *testing.T) {
	resp := decodeResponse{
		Samples: []sample{
			{Variable: "TMP", Value: 15.0, GridLat: 51.5, GridLon: -0.1},
			{Variable: "UGRD", Value: 3.0, GridLat: 51.5, GridLon: -0.1},
			{Variable: "VGRD", Value: 4.0, GridLat: 51.5, GridLon: -0.1},
		},
	}
	payload, _ := json.Marshal(resp)

	e := &Extractor{
		Cities: []City{{ID: "london", Lat: 51.5074, Lon: -0.1278}},
		runCommand: func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
			return payload, nil
		},
	}

	result, err := e.Extract([]byte("grib-bytes"), model.ExtractMeta{
		Model:     model.ModelHRRR,
		CycleHour: 12,
		RunDate:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(result.CityData) != 1 {
		t.Fatalf("len(CityData) = %d, want 1", len(result.CityData))
	}
	london := result.CityData[0]
	if london.TempC != 15.0 {
		t.Fatalf("TempC = %v, want 15.0", london.TempC)
	}
	wantSpeed := math.Sqrt(3.0*3.0 + 4.0*4.0)
	if math.Abs(london.WindSpeedMps-wantSpeed) > 1e-9 {
		t.Fatalf("WindSpeedMps = %v, want %v", london.WindSpeedMps, wantSpeed)
	}
}

func TestExtractOmitsCityWithoutTemperature(t *testing.T) {
	resp := decodeResponse{Samples: []sample{
		{Variable: "UGRD", Value: 1.0, GridLat: 51.5, GridLon: -0.1},
	}}
	payload, _ := json.Marshal(resp)

	e := &Extractor{
		Cities: []City{{ID: "london", Lat: 51.5074, Lon: -0.1278}},
		runCommand: func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
			return payload, nil
		},
	}

	result, err := e.Extract([]byte("grib-bytes"), model.ExtractMeta{Model: model.ModelGFS})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(result.CityData) != 0 {
		t.Fatalf("expected no cities without a TMP sample, got %d", len(result.CityData))
	}
}

func TestExtractFallsBackToPerVariableOnBatchFailure(t *testing.T) {
	calls := 0
	e := &Extractor{
		Cities: []City{{ID: "chicago", Lat: 41.8781, Lon: -87.6298}},
		runCommand: func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
			calls++
			if len(args) > 0 && args[0] == "--batch" {
				return nil, errBatchUnsupported
			}
			resp := decodeResponse{Samples: []sample{
				{Variable: "TMP", Value: 20.0, GridLat: 41.8781, GridLon: -87.6298},
			}}
			payload, _ := json.Marshal(resp)
			return payload, nil
		},
	}

	result, err := e.Extract([]byte("grib-bytes"), model.ExtractMeta{Model: model.ModelRAP})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if calls < 2 {
		t.Fatalf("expected batch attempt plus per-variable fallback calls, got %d calls", calls)
	}
	if len(result.CityData) != 1 || result.CityData[0].TempC != 20.0 {
		t.Fatalf("unexpected result: %+v", result.CityData)
	}
}

func TestNearestValueToleratesLongitudeWrap(t *testing.T) {
	samples := []sample{
		{Variable: "TMP", Value: 10.0, GridLat: 40.0, GridLon: 280.0}, // 0..360 convention, same as lon=-80
	}
	v, ok := nearestValue(samples, 40.0, -80.0)
	if !ok {
		t.Fatal("expected a match across the longitude-wrap boundary")
	}
	if v != 10.0 {
		t.Fatalf("value = %v, want 10.0", v)
	}
}

var errBatchUnsupported = &unsupportedError{}

type unsupportedError struct{}

func (e *unsupportedError) Error() string { return "batch flag unsupported" }
