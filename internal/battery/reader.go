package battery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cptspacemanspiff/battery-notifier/internal/config"
	"github.com/cptspacemanspiff/battery-notifier/internal/retry"
)

// Attribute file names under the battery root.
const (
	AttrCapacity   = "capacity"
	AttrStatus     = "status"
	AttrTemp       = "temp"
	AttrChargeType = "charge_type"
	AttrHealth     = "health"
	AttrCurrentNow = "current_now"
)

// Reader reads battery attributes from a single power_supply directory.
type Reader struct {
	root   string
	policy retry.Policy
	log    *slog.Logger
	now    func() time.Time
}

// NewReader creates a Reader for cfg.Root.
func NewReader(cfg config.BatteryConfig, logger *slog.Logger) *Reader {
	return &Reader{
		root:   cfg.Root,
		policy: retry.Policy{Attempts: cfg.ReadAttempts, Delay: cfg.RetryDelay()},
		log:    logger,
		now:    time.Now,
	}
}

// ReadAttribute returns the trimmed contents of one attribute file, retrying
// per the read policy. ok is false once every attempt has failed.
func (r *Reader) ReadAttribute(ctx context.Context, name string) (string, bool) {
	v, err := retry.Do(ctx, r.policy, r.log, "read battery attribute "+name, func(context.Context) (string, error) {
		return readAttr(filepath.Join(r.root, name))
	})
	if err != nil {
		return "", false
	}
	return v, true
}

// Status reads all six attributes and builds a Record, substituting defaults
// for any attribute that could not be read. It only fails when ctx is done.
func (r *Reader) Status(ctx context.Context) (Record, error) {
	var missing []string
	read := func(name, fallback string) string {
		if v, ok := r.ReadAttribute(ctx, name); ok {
			return v
		}
		missing = append(missing, name)
		return fallback
	}

	capacity := read(AttrCapacity, UnknownCapacity)
	status := read(AttrStatus, NotAvailable)
	temp := read(AttrTemp, "0")
	chargeType := read(AttrChargeType, NotAvailable)
	health := read(AttrHealth, NotAvailable)
	current := read(AttrCurrentNow, NotAvailable)

	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	rec := Record{
		Timestamp:   r.now().Unix(),
		Capacity:    capacity,
		Status:      ParseStatus(status),
		StatusRaw:   status,
		Temperature: ParseTemperature(temp),
		ChargeType:  ParseChargeType(chargeType),
		Health:      ParseHealth(health),
		Current:     current,
		Missing:     missing,
	}
	if len(missing) > 0 {
		r.log.Error("some battery information is missing, using defaults", "missing", strings.Join(missing, ","))
	}
	r.log.Debug("sample",
		"capacity", rec.Capacity,
		"status", status,
		"temp", temp,
		"charge_type", chargeType,
		"health", health,
		"current_ua", current)
	return rec, nil
}

func readAttr(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
