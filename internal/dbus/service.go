package dbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/cptspacemanspiff/battery-notifier/internal/battery"
	"github.com/cptspacemanspiff/battery-notifier/internal/report"
	"github.com/cptspacemanspiff/battery-notifier/internal/storage"
)

const (
	BusName   = "org.batterynotifier.Monitor"
	objPath   = "/org/batterynotifier/Monitor"
	ifaceName = "org.batterynotifier.Monitor"
)

// readTimeout keeps a fresh read under the bus's default 25s method call
// timeout. Reads that run longer fall back to the last observed record.
const readTimeout = 20 * time.Second

const introspectXML = `
<node>
  <interface name="` + ifaceName + `">
    <method name="GetStatus">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetReport">
      <arg direction="out" type="s" name="text"/>
    </method>
    <method name="GetState">
      <arg direction="out" type="s" name="json"/>
    </method>
  </interface>
` + introspect.IntrospectDataString + `
</node>`

type Reader interface {
	Status(ctx context.Context) (battery.Record, error)
}

// StateReader is the read side of the cursor store.
type StateReader interface {
	LoadCursor() (storage.Cursor, error)
	UpdatedAt() (time.Time, error)
}

// Service exposes the notifier over D-Bus.
type Service struct {
	reader Reader
	state  StateReader

	mu       sync.Mutex
	last     battery.Record
	haveLast bool
}

// NewService creates a new D-Bus service. state may be nil when cursor
// persistence is disabled.
func NewService(reader Reader, state StateReader) *Service {
	return &Service{reader: reader, state: state}
}

// Export registers the service on the session bus.
func (s *Service) Export() (*godbus.Conn, error) {
	conn, err := godbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	if err := conn.Export(s, objPath, ifaceName); err != nil {
		return nil, fmt.Errorf("export service: %w", err)
	}
	if err := conn.Export(introspect.Introspectable(introspectXML), objPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, fmt.Errorf("export introspection: %w", err)
	}

	reply, err := conn.RequestName(BusName, godbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("request name: %w", err)
	}
	if reply != godbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("name %s already taken", BusName)
	}

	return conn, nil
}

// GetStatus returns a fresh battery record as JSON, or the last observed one
// when the read does not finish within readTimeout.
func (s *Service) GetStatus() (string, *godbus.Error) {
	rec, dbusErr := s.read()
	if dbusErr != nil {
		return "", dbusErr
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return string(data), nil
}

// GetReport renders the same record as GetStatus as the chat report.
func (s *Service) GetReport() (string, *godbus.Error) {
	rec, dbusErr := s.read()
	if dbusErr != nil {
		return "", dbusErr
	}
	return report.Format(rec), nil
}

// GetState returns the persisted loop cursor as JSON.
func (s *Service) GetState() (string, *godbus.Error) {
	if s.state == nil {
		return "", godbus.MakeFailedError(errors.New("state persistence is disabled"))
	}
	c, err := s.state.LoadCursor()
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	at, err := s.state.UpdatedAt()
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	result := map[string]any{
		"last_update_id":   c.LastUpdateID,
		"last_report_hour": c.LastReportHour,
		"updated_at":       unixOrZero(at),
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return string(data), nil
}

// Observe records the latest battery reading taken by the report loop.
func (s *Service) Observe(_ context.Context, rec battery.Record) {
	s.mu.Lock()
	s.last = rec
	s.haveLast = true
	s.mu.Unlock()
}

func (s *Service) read() (battery.Record, *godbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()
	rec, err := s.reader.Status(ctx)
	if err == nil {
		s.Observe(ctx, rec)
		return rec, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.haveLast {
		return s.last, nil
	}
	return battery.Record{}, godbus.MakeFailedError(err)
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
