// Package monitor drives the report loop: one report at startup, one per hour
// at the configured minute, one per refresh button press, and a critical alert
// after any report taken at a low charge.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cptspacemanspiff/battery-notifier/internal/battery"
	"github.com/cptspacemanspiff/battery-notifier/internal/config"
	"github.com/cptspacemanspiff/battery-notifier/internal/report"
	"github.com/cptspacemanspiff/battery-notifier/internal/storage"
	"github.com/cptspacemanspiff/battery-notifier/internal/telegram"
)

// Report kinds, used for logging and metric labels.
const (
	KindStartup = "startup"
	KindHourly  = "hourly"
	KindRefresh = "refresh"
	KindResume  = "resume"
	KindManual  = "manual"
)

// Callback answers shown to the user who pressed the refresh button.
const (
	AnswerRefreshed  = "Data refreshed!"
	AnswerSendFailed = "Error sending data!"
	AnswerReadFailed = "Error retrieving data!"
)

type Reader interface {
	Status(ctx context.Context) (battery.Record, error)
}

type Notifier interface {
	SendReport(ctx context.Context, text string) error
	SendAlert(ctx context.Context, text string) error
	GetUpdates(ctx context.Context, offset int64) ([]telegram.Update, error)
	AnswerCallbackQuery(ctx context.Context, id, text string) error
}

// StateStore persists the update and hourly cursors across restarts.
type StateStore interface {
	LoadCursor() (storage.Cursor, error)
	SaveCursor(storage.Cursor) error
}

// Sink receives every record read for a report.
type Sink interface {
	Observe(ctx context.Context, rec battery.Record)
}

// Stats counts loop outcomes.
type Stats interface {
	ReportSent(kind string)
	ReportFailed(kind string)
	AlertSent()
	UpdatesProcessed(n int)
	LoopError()
}

type Option func(*Monitor)

// WithStore enables cursor persistence.
func WithStore(s StateStore) Option {
	return func(m *Monitor) { m.store = s }
}

func WithSink(s Sink) Option {
	return func(m *Monitor) { m.sinks = append(m.sinks, s) }
}

func WithStats(s Stats) Option {
	return func(m *Monitor) { m.stats = s }
}

// WithWake makes every value received on ch trigger a resume report.
func WithWake(ch <-chan struct{}) Option {
	return func(m *Monitor) { m.wake = ch }
}

type Monitor struct {
	sched       config.ScheduleConfig
	refreshData string
	reader      Reader
	notifier    Notifier
	store       StateStore
	sinks       []Sink
	stats       Stats
	wake        <-chan struct{}
	log         *slog.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	lastUpdateID    int64
	lastReportHour  time.Time
	lastHourlyCheck time.Time
	lastPoll        time.Time
}

func New(cfg *config.Config, reader Reader, notifier Notifier, logger *slog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		sched:       cfg.Schedule,
		refreshData: cfg.Telegram.RefreshData,
		reader:      reader,
		notifier:    notifier,
		stats:       nopStats{},
		log:         logger,
		now:         time.Now,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run restores the saved cursor, sends the startup report and then polls until
// ctx is cancelled. It returns an error only if the cursor cannot be restored.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.restore(); err != nil {
		return err
	}

	if err := m.Report(ctx, KindStartup); err != nil && ctx.Err() == nil {
		m.log.Error("startup report failed", "err", err)
	}

	for {
		delay := m.sched.LoopInterval()
		if err := m.safeStep(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.stats.LoopError()
			delay = m.sched.ErrorSleep()
			m.log.Error("loop iteration failed", "err", err, "backoff", delay)
		}
		if err := m.sleep(ctx, delay); err != nil {
			m.log.Info("monitor stopped", "last_update_id", m.lastUpdateID)
			return nil
		}
	}
}

// Step runs one STEADY-POLL iteration without the trailing sleep.
func (m *Monitor) Step(ctx context.Context) error {
	now := m.now()

	if m.lastPoll.IsZero() || now.Sub(m.lastPoll) >= m.sched.UpdatePollInterval() {
		m.lastPoll = now
		if err := m.pollUpdates(ctx); err != nil {
			return err
		}
	}

	select {
	case <-m.wake:
		if err := m.Report(ctx, KindResume); err != nil {
			m.log.Error("resume report failed", "err", err)
		}
	default:
	}

	return m.checkHourly(ctx, now)
}

// Report reads the battery, sends one report and runs the critical check.
func (m *Monitor) Report(ctx context.Context, kind string) error {
	rec, err := m.reader.Status(ctx)
	if err != nil {
		return fmt.Errorf("read battery: %w", err)
	}
	if err := m.deliver(ctx, kind, rec); err != nil {
		return err
	}
	m.checkCritical(ctx, rec)
	return nil
}

func (m *Monitor) deliver(ctx context.Context, kind string, rec battery.Record) error {
	for _, s := range m.sinks {
		s.Observe(ctx, rec)
	}
	if err := m.notifier.SendReport(ctx, report.Format(rec)); err != nil {
		m.stats.ReportFailed(kind)
		return fmt.Errorf("send %s report: %w", kind, err)
	}
	m.stats.ReportSent(kind)
	m.log.Info("report sent", "kind", kind, "capacity", rec.Capacity)
	return nil
}

func (m *Monitor) checkCritical(ctx context.Context, rec battery.Record) {
	if !report.IsCritical(rec, m.sched.CriticalThreshold) {
		return
	}
	m.log.Info("critical battery level reached", "capacity", rec.Capacity, "threshold", m.sched.CriticalThreshold)
	if err := m.notifier.SendAlert(ctx, report.CriticalAlert(rec)); err != nil {
		m.log.Error("critical alert failed", "err", err)
		return
	}
	m.stats.AlertSent()
}

func (m *Monitor) pollUpdates(ctx context.Context) error {
	updates, err := m.notifier.GetUpdates(ctx, m.lastUpdateID+1)
	if err != nil {
		m.log.Error("fetch updates failed", "offset", m.lastUpdateID+1, "err", err)
		return nil
	}
	if len(updates) == 0 {
		return nil
	}

	// Advance past every returned update before handling any, so a fault in
	// one handler cannot cause the batch to be fetched again.
	prev := m.lastUpdateID
	for _, u := range updates {
		if u.UpdateID > m.lastUpdateID {
			m.lastUpdateID = u.UpdateID
		}
	}

	for _, u := range updates {
		if u.UpdateID <= prev || u.CallbackQuery == nil || u.CallbackQuery.Data != m.refreshData {
			continue
		}
		m.handleRefresh(ctx, u.CallbackQuery)
	}
	m.stats.UpdatesProcessed(len(updates))
	m.log.Debug("updates processed", "count", len(updates), "last_update_id", m.lastUpdateID)

	return m.persist()
}

func (m *Monitor) handleRefresh(ctx context.Context, cb *telegram.CallbackQuery) {
	rec, err := m.reader.Status(ctx)
	if err != nil {
		m.log.Error("refresh read failed", "err", err)
		m.answer(ctx, cb.ID, AnswerReadFailed)
		return
	}
	if err := m.deliver(ctx, KindRefresh, rec); err != nil {
		m.log.Error("refresh report failed", "err", err)
		m.answer(ctx, cb.ID, AnswerSendFailed)
		return
	}
	m.answer(ctx, cb.ID, AnswerRefreshed)
	m.checkCritical(ctx, rec)
}

func (m *Monitor) answer(ctx context.Context, id, text string) {
	if err := m.notifier.AnswerCallbackQuery(ctx, id, text); err != nil {
		m.log.Error("answer callback failed", "callback_id", id, "err", err)
	}
}

// checkHourly sends the scheduled report once per calendar hour. The hour is
// marked as reported even when sending fails.
func (m *Monitor) checkHourly(ctx context.Context, now time.Time) error {
	if now.Minute() != m.sched.ReportMinute {
		return nil
	}
	hour := hourStart(now)
	if hour.Equal(m.lastReportHour) {
		return nil
	}
	if !m.lastHourlyCheck.IsZero() && now.Sub(m.lastHourlyCheck) < m.sched.HourlyCheckInterval() {
		return nil
	}
	m.lastHourlyCheck = now
	m.lastReportHour = hour

	if err := m.Report(ctx, KindHourly); err != nil {
		m.log.Error("hourly report failed", "hour", hour.Format(time.RFC3339), "err", err)
	}
	return m.persist()
}

func (m *Monitor) restore() error {
	if m.store == nil {
		return nil
	}
	c, err := m.store.LoadCursor()
	if err != nil {
		return fmt.Errorf("restore cursor: %w", err)
	}
	m.lastUpdateID = c.LastUpdateID
	if c.LastReportHour > 0 {
		m.lastReportHour = time.Unix(c.LastReportHour, 0)
	}
	m.log.Info("cursor restored", "last_update_id", c.LastUpdateID, "last_report_hour", c.LastReportHour)
	return nil
}

func (m *Monitor) persist() error {
	if m.store == nil {
		return nil
	}
	var hour int64
	if !m.lastReportHour.IsZero() {
		hour = m.lastReportHour.Unix()
	}
	if err := m.store.SaveCursor(storage.Cursor{LastUpdateID: m.lastUpdateID, LastReportHour: hour}); err != nil {
		return fmt.Errorf("persist cursor: %w", err)
	}
	return nil
}

func (m *Monitor) safeStep(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return m.Step(ctx)
}

func hourStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type nopStats struct{}

func (nopStats) ReportSent(string)    {}
func (nopStats) ReportFailed(string)  {}
func (nopStats) AlertSent()           {}
func (nopStats) UpdatesProcessed(int) {}
func (nopStats) LoopError()           {}
