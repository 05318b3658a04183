// Package dbus connects the notifier to the system and session buses: it
// watches logind for resume from suspend and exports a small status service.
package dbus

import (
	"log/slog"

	godbus "github.com/godbus/dbus/v5"
)

const (
	loginManager       = "org.freedesktop.login1.Manager"
	signalSleep        = loginManager + ".PrepareForSleep"
	signalShutdown     = loginManager + ".PrepareForShutdown"
	sleepSignalBufSize = 16
)

// SleepMonitor listens for systemd-logind PrepareForSleep/PrepareForShutdown
// signals and exposes a wake notification channel so the loop can report the
// battery right after a resume.
type SleepMonitor struct {
	conn *godbus.Conn
	done chan struct{}
	wake chan struct{}
	log  *slog.Logger
}

// NewSleepMonitor creates a new sleep monitor connected to the system bus.
func NewSleepMonitor(logger *slog.Logger) (*SleepMonitor, error) {
	conn, err := godbus.SystemBus()
	if err != nil {
		return nil, err
	}

	for _, member := range []string{"PrepareForSleep", "PrepareForShutdown"} {
		err = conn.AddMatchSignal(
			godbus.WithMatchInterface(loginManager),
			godbus.WithMatchMember(member),
		)
		if err != nil {
			return nil, err
		}
	}

	m := newSleepMonitor(conn, logger)
	go m.listen()
	return m, nil
}

func newSleepMonitor(conn *godbus.Conn, logger *slog.Logger) *SleepMonitor {
	return &SleepMonitor{
		conn: conn,
		done: make(chan struct{}),
		wake: make(chan struct{}, 1),
		log:  logger,
	}
}

// Wake returns a channel that receives a value each time the system wakes
// from sleep. Wakes that arrive before the previous one is consumed coalesce.
func (m *SleepMonitor) Wake() <-chan struct{} {
	return m.wake
}

// Close stops the monitor.
func (m *SleepMonitor) Close() {
	close(m.done)
}

func (m *SleepMonitor) listen() {
	ch := make(chan *godbus.Signal, sleepSignalBufSize)
	m.conn.Signal(ch)
	defer m.conn.RemoveSignal(ch)

	for {
		select {
		case sig := <-ch:
			m.handle(sig)
		case <-m.done:
			return
		}
	}
}

func (m *SleepMonitor) handle(sig *godbus.Signal) {
	if sig == nil || len(sig.Body) < 1 {
		return
	}
	active, ok := sig.Body[0].(bool)
	if !ok {
		return
	}

	switch sig.Name {
	case signalShutdown:
		if active {
			m.log.Info("system preparing for shutdown")
		}
	case signalSleep:
		if active {
			m.log.Info("system going to sleep")
			return
		}
		m.log.Info("system woke up")
		select {
		case m.wake <- struct{}{}:
		default:
		}
	}
}
