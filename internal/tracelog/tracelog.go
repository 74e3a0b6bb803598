// Copyright © 2026 The cm5674emu Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.

// Package tracelog is the structured event-tracer the peripherals and the
// emulator wiring use to report firmware-load problems, lock violations,
// and DSPI/flash state transitions. Logging routes through logrus.FieldLogger
// instead of raw fmt.Fprintf so severities (CRITICAL startup diagnostics
// vs. WARN lock violations vs. DEBUG frame traces) are distinguishable the
// way samsamfire-gocanopen and rcornwell-S370 log their peripheral
// activity.
package tracelog

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Tracer wraps a logrus.Logger: construct once, pass down to every
// peripheral.
type Tracer struct {
	log *logrus.Logger
}

// New creates a Tracer writing structured (text) log lines to out.
func New(out io.Writer) *Tracer {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Tracer{log: l}
}

// SetLevel adjusts verbosity; the CLI wires this to a --trace-level flag.
func (t *Tracer) SetLevel(level logrus.Level) { t.log.SetLevel(level) }

// Field returns a logrus.Entry scoped to a component name, e.g.
// t.Field("flash").Warnf("block %s locked, skipping program", name).
func (t *Tracer) Field(component string) *logrus.Entry {
	return t.log.WithField("component", component)
}

// Critical logs a startup-time configuration mistake per §7 "User-visible
// failure behavior": bad firmware size, missing file, etc. These fall back
// to defaults rather than aborting.
func (t *Tracer) Critical(component, format string, args ...interface{}) {
	t.Field(component).Errorf(format, args...)
}

// Fatal logs and then exits the process with status 1 (logrus's Fatalf
// calls os.Exit), for fatal conditions per §7, e.g. a DSPI MCR write that
// selects the unsupported DSI/CSI modes.
func (t *Tracer) Fatal(component, format string, args ...interface{}) {
	t.Field(component).Fatalf(format, args...)
}
