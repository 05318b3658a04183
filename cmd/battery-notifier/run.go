package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cptspacemanspiff/battery-notifier/internal/battery"
	dbussvc "github.com/cptspacemanspiff/battery-notifier/internal/dbus"
	"github.com/cptspacemanspiff/battery-notifier/internal/logging"
	"github.com/cptspacemanspiff/battery-notifier/internal/metrics"
	"github.com/cptspacemanspiff/battery-notifier/internal/monitor"
	"github.com/cptspacemanspiff/battery-notifier/internal/mqtt"
	"github.com/cptspacemanspiff/battery-notifier/internal/storage"
	"github.com/cptspacemanspiff/battery-notifier/internal/telegram"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the notifier until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, opts)
		},
	}
}

func runDaemon(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}

	logger, logFile, err := newLogger(cmd, cfg, opts, true)
	if err != nil {
		return err
	}
	defer closeQuietly(logFile)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	instanceID := uuid.NewString()
	batteryLog := logger.With("topic", logging.TopicBattery)
	telegramLog := logger.With("topic", logging.TopicTelegram)
	monitorLog := logger.With("topic", logging.TopicMonitor)
	dbusLog := logger.With("topic", logging.TopicDBus)
	mqttLog := logger.With("topic", logging.TopicMQTT)

	reader := battery.NewReader(cfg.Battery, batteryLog)
	client := telegram.NewClient(cfg.Telegram, telegramLog)

	var (
		monOpts []monitor.Option
		state   dbussvc.StateReader
		wg      sync.WaitGroup
	)

	if path := cfg.Storage.StateDBPath; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			logger.Error("create state dir", "err", err)
			return err
		}
		store, err := storage.Open(path)
		if err != nil {
			logger.Error("open state database", "path", path, "err", err)
			return err
		}
		defer store.Close()
		monOpts = append(monOpts, monitor.WithStore(store))
		state = store
	}

	if addr := cfg.Metrics.ListenAddr; addr != "" {
		m := metrics.New()
		monOpts = append(monOpts, monitor.WithStats(m), monitor.WithSink(m))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Serve(ctx, addr, logger); err != nil {
				logger.Error("metrics server stopped", "addr", addr, "err", err)
			}
		}()
	}

	if cfg.MQTT.Broker != "" {
		pub := mqtt.NewPublisher(cfg.MQTT, instanceID, mqttLog)
		defer pub.Disconnect()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pub.Connect(ctx); err != nil && ctx.Err() == nil {
				mqttLog.Warn("mqtt unavailable", "err", err)
			}
		}()
		monOpts = append(monOpts, monitor.WithSink(pub))
	}

	if cfg.DBus.SleepMonitor {
		sleepMon, err := dbussvc.NewSleepMonitor(dbusLog)
		if err != nil {
			logger.Warn("sleep monitor unavailable", "err", err)
		} else {
			defer sleepMon.Close()
			monOpts = append(monOpts, monitor.WithWake(sleepMon.Wake()))
		}
	}

	if cfg.DBus.ExportService {
		svc := dbussvc.NewService(reader, state)
		conn, err := svc.Export()
		if err != nil {
			logger.Warn("export dbus service", "err", err)
		} else {
			defer conn.Close()
			monOpts = append(monOpts, monitor.WithSink(svc))
			logger.Info("D-Bus service registered", "name", dbussvc.BusName)
		}
	}

	logger.Info("battery notifier started",
		"version", version,
		"instance", instanceID,
		"battery_root", cfg.Battery.Root,
		"report_minute", cfg.Schedule.ReportMinute,
		"critical_threshold", cfg.Schedule.CriticalThreshold)

	err = monitor.New(cfg, reader, client, monitorLog, monOpts...).Run(ctx)
	stop()
	wg.Wait()
	if err != nil {
		logger.Error("monitor failed", "err", err)
		return err
	}
	logger.Info("shutting down")
	return nil
}
