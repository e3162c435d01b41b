// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensors adapts concrete sensor transports (serial GPS receivers,
// MQTT topics, a WebSocket bridge and a scripted mock) to the engine's
// position and motion sources.
package sensors

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/accident_detector/internal/clock"
	"github.com/relabs-tech/accident_detector/internal/engine"
	"github.com/relabs-tech/accident_detector/internal/gps"
)

// OpenFunc opens a serial port.
type OpenFunc func(serial.OpenOptions) (io.ReadWriteCloser, error)

// NMEASource reads NMEA sentences from a serial GPS receiver.
type NMEASource struct {
	PortName string
	BaudRate uint
	Open     OpenFunc
	Clock    clock.Clock
	Logger   *slog.Logger
}

// SerialOptions returns the port settings used for the receiver: 8N1 with
// blocking single byte reads.
func SerialOptions(port string, baud uint) serial.OpenOptions {
	return serial.OpenOptions{
		PortName:              port,
		BaudRate:              baud,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
}

// OpenPort opens the receiver port. A permission failure on the device node
// is reported as engine.ErrPermissionDenied.
func (s *NMEASource) OpenPort() (io.ReadWriteCloser, error) {
	open := s.Open
	if open == nil {
		open = serial.Open
	}
	port, err := open(SerialOptions(s.PortName, s.BaudRate))
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %s: %v", engine.ErrPermissionDenied, s.PortName, err)
		}
		return nil, fmt.Errorf("open gps serial port %s: %w", s.PortName, err)
	}
	return port, nil
}

func (s *NMEASource) SubscribePositions(_ context.Context, h engine.PositionHandler) (engine.Subscription, error) {
	port, err := s.OpenPort()
	if err != nil {
		return nil, err
	}
	logger := s.logger()
	logger.Info("gps serial port opened", "port", s.PortName, "baud", s.BaudRate)

	go func() {
		err := ReadNMEA(port, s.clock(), logger, func(p gps.PositionSample) {
			h(gps.NewFix(p))
		})
		if err != nil {
			logger.Warn("gps read stopped", "port", s.PortName, "err", err)
		}
	}()

	// Closing the port unblocks the pending read and ends the reader.
	var once sync.Once
	return engine.SubscriptionFunc(func() error {
		var err error
		once.Do(func() { err = port.Close() })
		return err
	}), nil
}

func (s *NMEASource) clock() clock.Clock {
	if s.Clock == nil {
		return clock.Real{}
	}
	return s.Clock
}

func (s *NMEASource) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// ReadNMEA scans r line by line and calls handle for every sentence that
// yields a position. Unsupported sentences and noise are skipped. It returns
// nil when r is exhausted or closed.
func ReadNMEA(r io.Reader, clk clock.Clock, logger *slog.Logger, handle func(gps.PositionSample)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		p, err := gps.ParseNMEA(line, clk.Now())
		switch {
		case errors.Is(err, gps.ErrUnsupportedSentence):
			continue
		case err != nil:
			// receivers emit partial sentences on startup
			logger.Debug("nmea sentence dropped", "line", line, "err", err)
			continue
		}
		handle(p)
	}

	err := scanner.Err()
	if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}
