// Package schedule implements ScheduleManager (C1): per-model cycle-hour
// schedules, deterministic filename/key templates, and detection-window
// computation. Background tick loops are grounded on
// pkg/trader/orchestrator/orchestrator.go's ticker-driven discoveryLoop.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/weatheredge/nwp-signal-engine/internal/eventbus"
	"github.com/weatheredge/nwp-signal-engine/internal/model"
)

// ConfigError is raised for an unknown model.
type ConfigError struct {
	Model model.Model
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("schedule: unknown model %q", e.Model)
}

// modelConfig is the static per-model publication schedule.
type modelConfig struct {
	cycleHours          []int
	publishDelay        time.Duration
	windowDuration       time.Duration
	bufferBeforePublish time.Duration
	bucket              string
	region              string
	forecastHour        int
	keyTemplate         func(runDate time.Time, cycleHour, forecastHour int) string
}

var defaultConfigs = map[model.Model]modelConfig{
	model.ModelHRRR: {
		cycleHours:          hoursRange(0, 23),
		publishDelay:        55 * time.Minute,
		windowDuration:       45 * time.Minute,
		bufferBeforePublish: 5 * time.Minute,
		bucket:              "noaa-hrrr-bdp-pds",
		region:              "us-east-1",
		forecastHour:        0,
		keyTemplate: func(runDate time.Time, cycleHour, forecastHour int) string {
			return fmt.Sprintf("hrrr.%s/conus/hrrr.t%02dz.wrfsfcf%02d.grib2",
				runDate.Format("20060102"), cycleHour, forecastHour)
		},
	},
	model.ModelRAP: {
		cycleHours:          hoursRange(0, 23),
		publishDelay:        50 * time.Minute,
		windowDuration:       45 * time.Minute,
		bufferBeforePublish: 5 * time.Minute,
		bucket:              "noaa-rap-pds",
		region:              "us-east-1",
		forecastHour:        0,
		keyTemplate: func(runDate time.Time, cycleHour, forecastHour int) string {
			return fmt.Sprintf("rap.%s/rap.t%02dz.awp130pgrb.f%02d.grib2",
				runDate.Format("20060102"), cycleHour, forecastHour)
		},
	},
	model.ModelGFS: {
		cycleHours:          []int{0, 6, 12, 18},
		publishDelay:        4 * time.Minute,
		windowDuration:       45 * time.Minute,
		bufferBeforePublish: 2 * time.Minute,
		bucket:              "noaa-gfs-bdp-pds",
		region:              "us-east-1",
		forecastHour:        0,
		keyTemplate: func(runDate time.Time, cycleHour, forecastHour int) string {
			return fmt.Sprintf("gfs.%s/%02d/atmos/gfs.t%02dz.pgrb2.0p25.f%03d",
				runDate.Format("20060102"), cycleHour, cycleHour, forecastHour)
		},
	},
	model.ModelECMWF: {
		cycleHours:          []int{0, 6, 12, 18},
		publishDelay:        50 * time.Minute,
		windowDuration:       45 * time.Minute,
		bufferBeforePublish: 5 * time.Minute,
		bucket:              "ecmwf-forecasts",
		region:              "eu-west-1",
		forecastHour:        0,
		keyTemplate: func(runDate time.Time, cycleHour, forecastHour int) string {
			return fmt.Sprintf("%s/%02dz/ifs/0p25/oper/%s%02d0000-%dh-oper-fc.grib2",
				runDate.Format("20060102"), cycleHour, runDate.Format("20060102"), cycleHour, forecastHour)
		},
	},
}

func hoursRange(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for h := from; h <= to; h++ {
		out = append(out, h)
	}
	return out
}

// ExpectedFile is the deterministic object-store location for one model
// run's forecast file.
type ExpectedFile struct {
	Bucket       string
	Key          string
	FullURL      string
	Region       string
	Model        model.Model
	CycleHour    int
	ForecastHour int
}

// Window is the computed detection window for one model run.
type Window struct {
	WindowStart         time.Time
	ExpectedPublishTime time.Time
	MaxDuration         time.Duration
}

// Schedule is one upcoming (model, cycleHour, runDate) run.
type Schedule struct {
	Model     model.Model
	CycleHour int
	RunDate   time.Time
	Window    Window
}

// Manager computes run schedules and detection windows and fires
// DETECTION_WINDOW_START events as each window opens.
type Manager struct {
	bus     *eventbus.Bus
	logger  *zap.Logger
	configs map[model.Model]modelConfig
	now     func() time.Time
}

// New constructs a Manager with the default per-model configuration.
func New(bus *eventbus.Bus, logger *zap.Logger) *Manager {
	return &Manager{
		bus:     bus,
		logger:  logger,
		configs: defaultConfigs,
		now:     time.Now,
	}
}

// GetExpectedFile returns the deterministic object-store location for the
// given run. Returns a *ConfigError for an unknown model.
func (m *Manager) GetExpectedFile(mdl model.Model, cycleHour int, runDate time.Time) (ExpectedFile, error) {
	cfg, ok := m.configs[mdl]
	if !ok {
		return ExpectedFile{}, &ConfigError{Model: mdl}
	}
	key := cfg.keyTemplate(runDate.UTC(), cycleHour, cfg.forecastHour)
	return ExpectedFile{
		Bucket:       cfg.bucket,
		Key:          key,
		FullURL:      fmt.Sprintf("https://%s.s3.amazonaws.com/%s", cfg.bucket, key),
		Region:       cfg.region,
		Model:        mdl,
		CycleHour:    cycleHour,
		ForecastHour: cfg.forecastHour,
	}, nil
}

// CalculateDetectionWindow computes the polling window for the given run.
// Past dates are accepted (used by manual triggers) rather than
// rejected.
func (m *Manager) CalculateDetectionWindow(mdl model.Model, cycleHour int, runDate time.Time) (Window, error) {
	cfg, ok := m.configs[mdl]
	if !ok {
		return Window{}, &ConfigError{Model: mdl}
	}
	runDate = runDate.UTC()
	cycleStart := time.Date(runDate.Year(), runDate.Month(), runDate.Day(), cycleHour, 0, 0, 0, time.UTC)
	expectedPublish := cycleStart.Add(cfg.publishDelay)
	return Window{
		WindowStart:         expectedPublish.Add(-cfg.bufferBeforePublish),
		ExpectedPublishTime: expectedPublish,
		MaxDuration:         cfg.windowDuration,
	}, nil
}

// GetUpcomingRuns returns the next n runs across all configured models,
// in chronological order by window start.
func (m *Manager) GetUpcomingRuns(n int) ([]Schedule, error) {
	now := m.now().UTC()
	var out []Schedule

	for mdl, cfg := range m.configs {
		for _, h := range cfg.cycleHours {
			for dayOffset := -1; dayOffset <= 1; dayOffset++ {
				runDate := now.AddDate(0, 0, dayOffset)
				win, err := m.CalculateDetectionWindow(mdl, h, runDate)
				if err != nil {
					return nil, err
				}
				if win.WindowStart.Before(now) {
					continue
				}
				out = append(out, Schedule{Model: mdl, CycleHour: h, RunDate: runDate, Window: win})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Window.WindowStart.Before(out[j].Window.WindowStart)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Tick starts the clock-driven loop that fires DETECTION_WINDOW_START at
// each run's window start. It blocks until ctx is cancelled; run it in
// its own goroutine. checkInterval governs how often upcoming runs are
// re-evaluated — it does not throttle detection itself (spec §4.1: "not
// tick-throttled by load").
func (m *Manager) Tick(ctx context.Context, checkInterval time.Duration) {
	fired := make(map[string]bool)
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runs, err := m.GetUpcomingRuns(64)
			if err != nil {
				if m.logger != nil {
					m.logger.Error("schedule: GetUpcomingRuns failed", zap.Error(err))
				}
				continue
			}
			now := m.now().UTC()
			for _, r := range runs {
				key := fmt.Sprintf("%s|%d|%s", r.Model, r.CycleHour, r.RunDate.Format("20060102"))
				if fired[key] {
					continue
				}
				if now.Before(r.Window.WindowStart) {
					continue
				}
				fired[key] = true
				if m.bus != nil {
					m.bus.Emit(eventbus.Event{Type: eventbus.DetectionWindowStart, Payload: r})
				}
			}
		}
	}
}
