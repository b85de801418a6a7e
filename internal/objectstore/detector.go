// Detection state machine (C2): per-run polling loop, smart-range
// download, timeout/MISSED handling, and local + bus event emission.
// The per-detection cancellable-context lifecycle and the
// stopDetection/stopAll shutdown pattern are grounded on
// pkg/trader/streaming.Hub's per-subscription goroutine teardown.
package objectstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/weatheredge/nwp-signal-engine/internal/eventbus"
	"github.com/weatheredge/nwp-signal-engine/internal/model"
)

// Extractor decodes a raw GRIB buffer into per-city scalars. Satisfied
// by internal/grib.Extractor; declared here so Detector doesn't import
// the grib package directly.
type Extractor interface {
	Extract(buffer []byte, meta model.ExtractMeta) (model.ExtractResult, error)
}

// LatencyRecorder stamps named trace checkpoints. Satisfied by
// *internal/latency.Tracker.
type LatencyRecorder interface {
	Record(traceID string, field model.TraceField, ts time.Time)
}

// ExpectedFile is the deterministic object-store location being polled.
// Mirrors internal/schedule.ExpectedFile to avoid a dependency on that
// package from objectstore.
type ExpectedFile struct {
	Bucket       string
	Key          string
	Region       string
	Model        model.Model
	CycleHour    int
	ForecastHour int
}

// Window is the detection window being polled against.
type Window struct {
	RunDate             time.Time
	WindowStart         time.Time
	ExpectedPublishTime time.Time
	MaxDuration         time.Duration
}

// DetectedEvent is published locally (via the Detector's own handlers)
// when the object first appears.
type DetectedEvent struct {
	File              ExpectedFile
	TraceID           string
	DetectedAt        time.Time
	DetectionLatency  time.Duration
}

// ConfirmedEvent is published locally once the buffer has been
// downloaded and handed off for extraction.
type ConfirmedEvent struct {
	File    ExpectedFile
	TraceID string
	RunDate time.Time
	Result  model.ExtractResult
}

// TimeoutEvent is published locally when a window expires undetected.
type TimeoutEvent struct {
	File    ExpectedFile
	TraceID string
}

// ErrorEvent is published locally for transport/parse failures.
type ErrorEvent struct {
	File    ExpectedFile
	TraceID string
	Err     error
}

// Handlers are the local (non-bus) callbacks a caller can attach to one
// detection. Any of them may be nil.
type Handlers struct {
	OnDetected func(DetectedEvent)
	OnConfirmed func(ConfirmedEvent)
	OnTimeout  func(TimeoutEvent)
	OnError    func(ErrorEvent)
}

type activeDetection struct {
	cancel context.CancelFunc
}

// Detector is ObjectStoreDetector (C2): it polls a shared Client for a
// set of concurrently active (bucket, key) targets, downloads and hands
// off confirmed files, and retires each detection on confirm, timeout,
// or explicit stop.
type Detector struct {
	client       Client
	extractor    Extractor
	bus          *eventbus.Bus
	logger       *zap.Logger
	latency      LatencyRecorder
	pollInterval time.Duration

	mu     sync.Mutex
	active map[string]*activeDetection
}

// New constructs a Detector. pollInterval defaults to 150ms (spec
// §4.2) when <= 0.
func New(client Client, extractor Extractor, bus *eventbus.Bus, logger *zap.Logger, latency LatencyRecorder, pollInterval time.Duration) *Detector {
	if pollInterval <= 0 {
		pollInterval = 150 * time.Millisecond
	}
	return &Detector{
		client:       client,
		extractor:    extractor,
		bus:          bus,
		logger:       logger,
		latency:      latency,
		pollInterval: pollInterval,
		active:       make(map[string]*activeDetection),
	}
}

func detectionKey(file ExpectedFile) string {
	return fmt.Sprintf("%s|%s", file.Bucket, file.Key)
}

// WarmUp issues a throwaway HEAD to eliminate cold-start TLS/connection
// latency before the first real poll (spec §4.2).
func (d *Detector) WarmUp(ctx context.Context, file ExpectedFile) {
	_, _, _ = d.client.Head(ctx, file.Bucket, file.Key)
}

// StartDetection begins polling (bucket, key) at d.pollInterval. It
// returns immediately; polling and download run on a background
// goroutine owned by this detection's cancellable context. traceID
// identifies the latency trace this run contributes to.
func (d *Detector) StartDetection(ctx context.Context, file ExpectedFile, window Window, traceID string, handlers Handlers) {
	key := detectionKey(file)

	d.mu.Lock()
	if existing, ok := d.active[key]; ok {
		existing.cancel()
	}
	detCtx, cancel := context.WithCancel(ctx)
	d.active[key] = &activeDetection{cancel: cancel}
	d.mu.Unlock()

	go d.run(detCtx, file, window, traceID, handlers)
}

// StopDetection cancels the in-flight poll for (bucket, key), if any.
func (d *Detector) StopDetection(file ExpectedFile) {
	key := detectionKey(file)
	d.mu.Lock()
	defer d.mu.Unlock()
	if det, ok := d.active[key]; ok {
		det.cancel()
		delete(d.active, key)
	}
}

// StopAll cancels every in-flight detection.
func (d *Detector) StopAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, det := range d.active {
		det.cancel()
		delete(d.active, key)
	}
}

func (d *Detector) retire(file ExpectedFile) {
	key := detectionKey(file)
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.active, key)
}

func (d *Detector) run(ctx context.Context, file ExpectedFile, window Window, traceID string, handlers Handlers) {
	defer d.retire(file)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			if now.Sub(window.WindowStart) > window.MaxDuration {
				d.emitTimeout(file, traceID, handlers)
				return
			}

			exists, size, err := d.client.Head(ctx, file.Bucket, file.Key)
			if err != nil {
				if d.logger != nil {
					d.logger.Warn("objectstore: head poll failed, retrying next tick",
						zap.String("bucket", file.Bucket), zap.String("key", file.Key), zap.Error(err))
				}
				continue
			}
			if !exists {
				continue
			}

			d.handleDetected(ctx, file, window, traceID, now, size, handlers)
			return
		}
	}
}

func (d *Detector) handleDetected(ctx context.Context, file ExpectedFile, window Window, traceID string, detectedAt time.Time, size int64, handlers Handlers) {
	if d.latency != nil {
		d.latency.Record(traceID, model.FieldFileDetected, detectedAt)
	}

	detected := DetectedEvent{
		File:             file,
		TraceID:          traceID,
		DetectedAt:       detectedAt,
		DetectionLatency: detectedAt.Sub(window.WindowStart),
	}
	if handlers.OnDetected != nil {
		handlers.OnDetected(detected)
	}
	if d.bus != nil {
		d.bus.Emit(eventbus.Event{Type: eventbus.FileDetected, Payload: detected})
	}

	buf, viaRange, err := smartRangeDownload(ctx, d.client, file.Bucket, file.Key, size)
	if err != nil || !viaRange {
		if err != nil && d.logger != nil {
			d.logger.Warn("objectstore: smart range download failed, falling back to full download",
				zap.String("key", file.Key), zap.Error(err))
		}
		buf, err = d.client.Get(ctx, file.Bucket, file.Key)
		if err != nil {
			d.emitError(file, traceID, fmt.Errorf("objectstore: full download fallback: %w", err), handlers)
			return
		}
	}

	if d.latency != nil {
		d.latency.Record(traceID, model.FieldParseStart, time.Time{})
	}
	result, err := d.extractor.Extract(buf, model.ExtractMeta{
		Model:        file.Model,
		CycleHour:    file.CycleHour,
		RunDate:      window.RunDate,
		ForecastHour: file.ForecastHour,
	})
	if d.latency != nil {
		d.latency.Record(traceID, model.FieldParseEnd, time.Time{})
	}
	if err != nil {
		d.emitError(file, traceID, fmt.Errorf("objectstore: grib extraction: %w", err), handlers)
		return
	}
	result.FileSizeB = int64(len(buf))

	confirmed := ConfirmedEvent{File: file, TraceID: traceID, RunDate: window.RunDate, Result: result}
	if handlers.OnConfirmed != nil {
		handlers.OnConfirmed(confirmed)
	}
	if d.bus != nil {
		d.bus.Emit(eventbus.Event{Type: eventbus.FileConfirmed, Payload: confirmed})
	}
}

func (d *Detector) emitTimeout(file ExpectedFile, traceID string, handlers Handlers) {
	evt := TimeoutEvent{File: file, TraceID: traceID}
	if handlers.OnTimeout != nil {
		handlers.OnTimeout(evt)
	}
	if d.logger != nil {
		d.logger.Warn("objectstore: detection window timed out, marking MISSED",
			zap.String("bucket", file.Bucket), zap.String("key", file.Key))
	}
}

func (d *Detector) emitError(file ExpectedFile, traceID string, err error, handlers Handlers) {
	evt := ErrorEvent{File: file, TraceID: traceID, Err: err}
	if handlers.OnError != nil {
		handlers.OnError(evt)
	}
	if d.logger != nil {
		d.logger.Error("objectstore: detection failed",
			zap.String("bucket", file.Bucket), zap.String("key", file.Key), zap.Error(err))
	}
}
