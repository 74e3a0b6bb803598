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

// Command cm5674emu is the CLI entrypoint wiring internal/emulator's
// Runtime to a project directory, per spec.md §6 "External Interfaces."
// It carries no instruction decoder of its own (§1/§9 Non-goals): Boot
// resolves an initial PC from the boot orchestrator and the command
// reports it, standing in for the executor a real core loop would run.
//
// Flags are parsed before any terminal mode change, raw mode is set up and
// torn down around the run, and Ctrl-C restores the terminal before exit.
// The flag surface itself is built on github.com/spf13/cobra since
// config-dir discovery, firmware loading, and backup policy are a larger
// surface than a couple of debug flags warrant hand-rolling with flag.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cm5674/emu/internal/emulator"
	"github.com/cm5674/emu/internal/sysconfig"
	"github.com/cm5674/emu/internal/tracelog"
)

var (
	flagConfigDir   string
	flagInitFlash   string
	flagNoBackup    string
	flagResetBackup bool
	flagGDBPort     string
	flagEntryPoint  string
	flagTraceLevel  string
)

const defaultGDBPort = 47001

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cm5674emu",
		Short: "MPC5674F-class bus and peripheral emulator",
		RunE:  run,
	}
	cmd.Flags().StringVar(&flagConfigDir, "config-dir", "", "project directory (default ~/."+sysconfig.ProjectName+"/)")
	cmd.Flags().StringVar(&flagInitFlash, "init-flash", "", "copy <file> into the project directory as the firmware image")
	cmd.Flags().StringVar(&flagNoBackup, "no-backup", "", "run once against <file> without persisting a backup")
	cmd.Flags().BoolVar(&flagResetBackup, "reset-backup", false, "delete any backup file under the project dir on startup")
	cmd.Flags().StringVar(&flagGDBPort, "gdb-port", "", "wait for a debugger to attach before running (default 47001)")
	cmd.Flags().StringVarP(&flagEntryPoint, "entry", "E", "", "set an initial program counter override (hex)")
	cmd.Flags().StringVar(&flagTraceLevel, "trace-level", "info", "log level: debug, info, warn, error")
	return cmd
}

// setupTerminal puts stdin in raw mode when it is a terminal.
func setupTerminal() (*term.State, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, nil
	}
	state, err := term.GetState(fd)
	if err != nil {
		return nil, fmt.Errorf("get terminal state: %w", err)
	}
	if _, err := term.MakeRaw(fd); err != nil {
		return nil, fmt.Errorf("set raw mode: %w", err)
	}
	return state, nil
}

func restoreTerminal(state *term.State) {
	if state == nil {
		return
	}
	term.Restore(int(os.Stdin.Fd()), state)
}

func run(cmd *cobra.Command, args []string) error {
	log := tracelog.New(os.Stderr)
	if lvl, err := logrus.ParseLevel(flagTraceLevel); err == nil {
		log.SetLevel(lvl)
	}

	if flagGDBPort != "" {
		port := defaultGDBPort
		if n, err := strconv.Atoi(flagGDBPort); err == nil {
			port = n
		}
		log.Field("cli").Infof("waiting for a debugger on port %d (gdb stub is a collaborator, not modeled here)", port)
	}

	dir := flagConfigDir
	if dir == "" {
		d, err := sysconfig.DefaultDir()
		if err != nil {
			return err
		}
		dir = d
	}
	mgr, err := sysconfig.Open(dir)
	if err != nil {
		return err
	}

	if flagResetBackup {
		if err := mgr.ResetBackup(); err != nil {
			return err
		}
	}
	if flagInitFlash != "" {
		if err := mgr.InitFlash(flagInitFlash); err != nil {
			return err
		}
	}

	// --no-backup <file> runs once against file without touching the
	// project directory's persisted firmware pointer or backup file, per
	// §6. Absent that flag, firmware and backup come from the project.
	firmwarePath := flagNoBackup
	noBackup := firmwarePath != ""
	if !noBackup {
		firmwarePath = mgr.FirmwarePath()
	}

	// LoadComplete computes its own hash suffix from the controller's
	// actual post-load state, so the CLI only needs to supply the
	// unhashed file prefix here.
	backupPath := ""
	if !noBackup && firmwarePath != "" {
		backupPath = mgr.BackupPrefix()
	}

	rt := emulator.New(emulator.Config{Log: log})
	defer rt.Close()

	if flagEntryPoint != "" {
		pc, err := strconv.ParseUint(strings.TrimPrefix(flagEntryPoint, "0x"), 16, 32)
		if err != nil {
			return fmt.Errorf("cli: invalid -E entry point %q: %w", flagEntryPoint, err)
		}
		rt.BAM.SetEntryPoint(uint32(pc))
	}

	termState, err := setupTerminal()
	if err != nil {
		return err
	}
	defer restoreTerminal(termState)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		restoreTerminal(termState)
		os.Exit(130)
	}()

	pc, err := rt.Boot(firmwarePath, backupPath, true)
	if err != nil {
		restoreTerminal(termState)
		return fmt.Errorf("cli: boot failed: %w", err)
	}
	log.Field("cli").Infof("boot complete, initial PC=0x%08X", pc)

	// No instruction decoder is implemented here (§1/§9 Non-goals): a
	// real build wires an Executor satisfying emulator.Executor/
	// BusRequester into this point and drives rt.Bus/rt.Intc/rt.Clock
	// from its fetch-decode-execute loop.
	return nil
}
