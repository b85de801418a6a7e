package objectstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/weatheredge/nwp-signal-engine/internal/model"
)

type fakeDetectorClient struct {
	mu     sync.Mutex
	exists bool
	body   []byte
}

func (f *fakeDetectorClient) setExists(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exists = v
}

func (f *fakeDetectorClient) Head(ctx context.Context, bucket, key string) (bool, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exists, int64(len(f.body)), nil
}

func (f *fakeDetectorClient) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.exists {
		return nil, ErrNotFound
	}
	return f.body, nil
}

func (f *fakeDetectorClient) GetRange(ctx context.Context, bucket, key string, start, end int64) ([]byte, error) {
	return nil, ErrNotFound
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(buffer []byte, meta model.ExtractMeta) (model.ExtractResult, error) {
	return model.ExtractResult{Model: meta.Model, CycleHour: meta.CycleHour}, nil
}

func TestStartDetectionEmitsDetectedThenConfirmed(t *testing.T) {
	client := &fakeDetectorClient{body: []byte("grib-bytes")}
	d := New(client, fakeExtractor{}, nil, nil, nil, 5*time.Millisecond)

	detected := make(chan DetectedEvent, 1)
	confirmed := make(chan ConfirmedEvent, 1)

	file := ExpectedFile{Bucket: "b", Key: "k", Model: model.ModelHRRR, CycleHour: 12}
	window := Window{WindowStart: time.Now(), MaxDuration: time.Second}

	d.StartDetection(context.Background(), file, window, "trace-1", Handlers{
		OnDetected:  func(e DetectedEvent) { detected <- e },
		OnConfirmed: func(e ConfirmedEvent) { confirmed <- e },
	})

	time.Sleep(20 * time.Millisecond)
	client.setExists(true)

	select {
	case e := <-detected:
		if e.TraceID != "trace-1" {
			t.Fatalf("traceID = %q, want trace-1", e.TraceID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnDetected")
	}

	select {
	case e := <-confirmed:
		if e.Result.Model != model.ModelHRRR {
			t.Fatalf("confirmed model = %v, want HRRR", e.Result.Model)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnConfirmed")
	}
}

func TestStartDetectionEmitsTimeoutWhenWindowExpires(t *testing.T) {
	client := &fakeDetectorClient{}
	d := New(client, fakeExtractor{}, nil, nil, nil, 5*time.Millisecond)

	timedOut := make(chan TimeoutEvent, 1)
	file := ExpectedFile{Bucket: "b", Key: "k"}
	window := Window{WindowStart: time.Now().Add(-time.Hour), MaxDuration: 10 * time.Millisecond}

	d.StartDetection(context.Background(), file, window, "trace-2", Handlers{
		OnTimeout: func(e TimeoutEvent) { timedOut <- e },
	})

	select {
	case e := <-timedOut:
		if e.TraceID != "trace-2" {
			t.Fatalf("traceID = %q, want trace-2", e.TraceID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnTimeout")
	}
}

func TestStopDetectionCancelsPolling(t *testing.T) {
	client := &fakeDetectorClient{}
	d := New(client, fakeExtractor{}, nil, nil, nil, 5*time.Millisecond)

	file := ExpectedFile{Bucket: "b", Key: "k"}
	window := Window{WindowStart: time.Now(), MaxDuration: time.Hour}

	d.StartDetection(context.Background(), file, window, "trace-3", Handlers{})
	d.StopDetection(file)

	d.mu.Lock()
	_, stillActive := d.active[detectionKey(file)]
	d.mu.Unlock()
	if stillActive {
		t.Fatal("expected detection to be removed from active map after StopDetection")
	}
}
