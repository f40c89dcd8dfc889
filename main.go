package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ericogr/hcsr04-exerciser/pkg/config"
	"github.com/ericogr/hcsr04-exerciser/pkg/monitor"
	"github.com/ericogr/hcsr04-exerciser/pkg/output"
	"github.com/ericogr/hcsr04-exerciser/pkg/output/console"
	"github.com/ericogr/hcsr04-exerciser/pkg/output/mqtt"
	"github.com/ericogr/hcsr04-exerciser/pkg/output/redis"
	"github.com/ericogr/hcsr04-exerciser/pkg/output/sqlite"
	"github.com/ericogr/hcsr04-exerciser/pkg/sensor"
	"github.com/sirupsen/logrus"
)

type outputEntry struct {
	Type       string
	IntervalMs int
	Out        output.Output
	last       time.Time
}

func main() {
	cfg, err := config.LoadFromFlags()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}

	log := setupLogger(cfg.Log)
	log.WithFields(logrus.Fields{"device": cfg.Device.Path, "type": cfg.Device.Type}).Info("starting hcsr04 exerciser")

	s, err := sensor.NewHCSR04Sensor(cfg.Device, log)
	if err != nil {
		log.Fatalf("sensor: %v", err)
	}
	defer s.Close()

	entries, err := initOutputs(&cfg, log)
	if err != nil {
		log.Fatalf("outputs: %v", err)
	}
	defer closeOutputs(entries, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *monitor.Metrics
	if cfg.Metrics.Enabled {
		metrics = monitor.NewMetrics()
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen, log); err != nil {
				log.WithError(err).Error("metrics server")
			}
		}()
	}

	go closeOnDone(ctx, s, log)

	if err := runCycles(ctx, s, entries, loopOptions{
		Cycles:               cfg.Cycles,
		Interval:             time.Duration(cfg.IntervalMs) * time.Millisecond,
		MaxConsecutiveErrors: cfg.MaxConsecutiveErrors,
	}, metrics, log); err != nil {
		log.Errorf("exerciser stopped: %v", err)
		closeOutputs(entries, log)
		s.Close()
		os.Exit(1)
	}
	log.Info("exerciser finished")
}

// initOutputs builds the configured outputs. Outputs without their own
// interval inherit the cycle interval.
func initOutputs(cfg *config.Config, log logrus.FieldLogger) ([]*outputEntry, error) {
	entries := make([]*outputEntry, 0, len(cfg.Outputs))
	for i := range cfg.Outputs {
		oc := &cfg.Outputs[i]
		if oc.IntervalMs == 0 {
			oc.IntervalMs = cfg.IntervalMs
		}
		out, err := newOutput(*oc, cfg.Device, log)
		if err != nil {
			closeOutputs(entries, log)
			return nil, fmt.Errorf("%s: %w", oc.Type, err)
		}
		entries = append(entries, &outputEntry{Type: oc.Type, IntervalMs: oc.IntervalMs, Out: out})
	}
	return entries, nil
}

func newOutput(oc config.OutputConfig, dev config.DeviceConfig, log logrus.FieldLogger) (output.Output, error) {
	switch strings.ToLower(oc.Type) {
	case config.OutputConsole:
		return console.NewConsole(), nil
	case config.OutputMQTT:
		var mc config.MQTTConfig
		if oc.MQTT != nil {
			mc = *oc.MQTT
		}
		return mqtt.NewMQTT(mc, log)
	case config.OutputRedis:
		var rc config.RedisConfig
		if oc.Redis != nil {
			rc = *oc.Redis
		}
		return redis.NewRedis(rc, deviceID(dev), log)
	case config.OutputSQLite:
		var sc config.SQLiteConfig
		if oc.SQLite != nil {
			sc = *oc.SQLite
		}
		return sqlite.NewSQLite(sc)
	default:
		return nil, fmt.Errorf("unknown output type %q", oc.Type)
	}
}

func deviceID(dev config.DeviceConfig) string {
	if dev.Type == config.DeviceSimulation || dev.Path == "" {
		return config.DeviceSimulation
	}
	return filepath.Base(dev.Path)
}

func closeOutputs(entries []*outputEntry, log logrus.FieldLogger) {
	for _, e := range entries {
		if e.Out == nil {
			continue
		}
		if err := e.Out.Close(); err != nil {
			log.WithError(err).WithField("output", e.Type).Warn("close output")
		}
		e.Out = nil
	}
}

// closeOnDone closes the sensor once ctx is done so that a cycle blocked in
// its read fails instead of hanging.
func closeOnDone(ctx context.Context, s sensor.Sensor, log logrus.FieldLogger) {
	<-ctx.Done()
	log.Info("shutting down, closing device")
	if err := s.Close(); err != nil {
		log.WithError(err).Warn("close device")
	}
}

type loopOptions struct {
	// Cycles is the number of cycles to run; 0 runs until ctx is done.
	Cycles               int
	Interval             time.Duration
	MaxConsecutiveErrors int
}

// runCycles issues ranging cycles one after another at the configured
// cadence. Failed cycles are logged and counted; the loop only gives up when
// MaxConsecutiveErrors is set and reached.
func runCycles(ctx context.Context, s sensor.Sensor, entries []*outputEntry, opts loopOptions, metrics *monitor.Metrics, log logrus.FieldLogger) error {
	consecutive := 0
	for i := 0; opts.Cycles == 0 || i < opts.Cycles; i++ {
		if ctx.Err() != nil {
			return nil
		}

		start := time.Now()
		r, err := s.Read()
		metrics.Observe(r, err, time.Since(start))

		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			consecutive++
			log.WithError(err).WithFields(logrus.Fields{"cycle": r.Cycle, "kind": monitor.ErrorKind(err)}).Warn("ranging cycle failed")
			if opts.MaxConsecutiveErrors > 0 && consecutive >= opts.MaxConsecutiveErrors {
				return fmt.Errorf("%d consecutive failed cycles: %w", consecutive, err)
			}
		} else {
			consecutive = 0
			publish(entries, r, log)
		}

		if opts.Cycles != 0 && i == opts.Cycles-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(opts.Interval):
		}
	}
	return nil
}

// publish sends r to every output whose interval has elapsed since its last
// publish, measured on reading timestamps.
func publish(entries []*outputEntry, r sensor.Reading, log logrus.FieldLogger) {
	for _, e := range entries {
		interval := time.Duration(e.IntervalMs) * time.Millisecond
		if !e.last.IsZero() && r.Timestamp.Sub(e.last) < interval {
			continue
		}
		if err := e.Out.Publish(r); err != nil {
			log.WithError(err).WithField("output", e.Type).Warn("publish failed")
			continue
		}
		e.last = r.Timestamp
	}
}

func setupLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	switch cfg.Output {
	case "stdout":
		log.SetOutput(os.Stdout)
	case "file":
		if cfg.FilePath == "" {
			break
		}
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			log.SetOutput(file)
		} else {
			log.Warnf("open log file %s: %v, using stderr", cfg.FilePath, err)
		}
	default:
		log.SetOutput(os.Stderr)
	}

	return log
}
