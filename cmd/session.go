package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Ddedalus/syringe-pump/internal/protocol"
	"github.com/Ddedalus/syringe-pump/internal/pump"
	"github.com/Ddedalus/syringe-pump/internal/serial"
	"github.com/Ddedalus/syringe-pump/internal/simulator"
	"github.com/Ddedalus/syringe-pump/internal/transcript"
)

// session is one connection to a pump for the lifetime of a command.
type session struct {
	ID      string
	Pump    *pump.Pump
	Driver  *protocol.Driver
	Port    *serial.Port // nil when simulated
	closers []io.Closer
}

// openSession connects to the configured port, or to a simulator with
// --simulate, and initialises the pump.
func openSession(cmd *cobra.Command) (*session, error) {
	ctx := cmd.Context()
	cfg := appConfig
	s := &session{}

	var transport protocol.Transport
	if viper.GetBool("simulate") {
		simCfg := simulator.DefaultConfig()
		if cfg.Pump.Address > 0 {
			simCfg.Address = cfg.Pump.Address
		}
		transport = simulator.New(simCfg)
		s.ID = uuid.New().String()
		logger.Debug("using pump simulator", "session", s.ID)
	} else {
		if cfg.Serial.Port == "" {
			return nil, fmt.Errorf("port is required (set via --port flag or PUMPLINK_SERIAL_PORT env var)")
		}
		portCfg, err := cfg.Serial.Defaults.ToPortConfig()
		if err != nil {
			return nil, err
		}
		port, err := serial.Open(cfg.Serial.Port, portCfg)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, port)
		s.ID = port.ID
		s.Port = port
		transport = port
		logger.Debug("opened serial port", "port", port.Name, "session", s.ID, "baud", portCfg.BaudRate)
	}

	opts := []protocol.Option{
		protocol.WithLogger(logger),
		protocol.WithCommandPrefix(cfg.Pump.CommandPrefix),
		protocol.WithResyncTimeout(cfg.Pump.ResyncTimeout()),
	}
	if cfg.Pump.Address >= 0 {
		opts = append(opts, protocol.WithAddress(cfg.Pump.Address))
	}

	recorder, err := s.openTranscript()
	if err != nil {
		s.Close()
		return nil, err
	}
	if recorder != nil {
		opts = append(opts, protocol.WithRecorder(recorder))
	}

	s.Driver = protocol.New(transport, opts...)
	s.Pump = pump.New(s.Driver,
		pump.WithLogger(logger),
		pump.WithQuickStartMode(cfg.Pump.QuickStartMode),
		pump.WithClockSync(cfg.Pump.SetClock),
		pump.WithExitBrightness(cfg.Pump.ExitBrightness),
	)

	if err := s.Pump.Open(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to open pump session: %w", err)
	}
	return s, nil
}

func (s *session) openTranscript() (protocol.Recorder, error) {
	cfg := appConfig.Transcript
	var recorders []protocol.Recorder

	if cfg.Enabled && cfg.File != "" {
		r, err := transcript.OpenYAMLFile(cfg.File, s.ID)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, r)
		recorders = append(recorders, r)
	}

	if cfg.Enabled && cfg.MQTT.Enabled {
		r, err := transcript.DialMQTT(transcript.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			QoS:      byte(cfg.MQTT.QoS),
		}, s.ID)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, r)
		recorders = append(recorders, r)
	}

	if len(recorders) == 0 {
		return nil, nil
	}
	return transcript.Multi(recorders...), nil
}

// Close releases the transcript sinks and the port. The motor is left in
// whatever state the command put it in.
func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// withSession opens a session, runs fn and closes the session.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn("failed to close session", "err", err)
		}
	}()
	return fn(cmd.Context(), s)
}
