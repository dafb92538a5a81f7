package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chase3718/gesturebridge/internal/config"
	"github.com/chase3718/gesturebridge/internal/eme"
	"github.com/chase3718/gesturebridge/internal/gesture"
	"github.com/chase3718/gesturebridge/internal/ingest"
	"github.com/chase3718/gesturebridge/internal/midiout"
	"github.com/chase3718/gesturebridge/internal/mode"
	"github.com/chase3718/gesturebridge/internal/param"
	"github.com/chase3718/gesturebridge/internal/queue"
	"github.com/chase3718/gesturebridge/internal/request"
	"github.com/chase3718/gesturebridge/internal/timer"
)

// -------------------- Logger --------------------

// logger is the package-wide structured logger. Safe to use before initLogger
// is called; defaults to slog.Default().
var logger = slog.Default()

// initLogger configures the shared slog logger and calls slog.SetDefault so
// the stdlib log package also routes through the same handler.
func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug, // include file:line in debug mode
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

// -------------------- Tunables --------------------

const (
	defaultUpdateRate = 110.0 // Hz
	defaultMIDIRate   = 100.0 // Hz
	defaultOSCRate    = 5.0   // Hz

	defaultMIDIQueue = 256
	defaultOSCQueue  = 16

	oscWriteAttempts = 16
)

// PREFERRED_OUTPUT_PATTERNS: virtual buses a DAW usually listens on.
var PREFERRED_OUTPUT_PATTERNS = []string{"IAC", "loopMIDI", "gesturebridge"}

// -------------------- Options --------------------

type options struct {
	debug      bool
	configPath string
	dumpConfig string

	midiOut  string
	midiPort string
	serial   string
	baud     int

	oscListen   string
	oscSend     string
	oscAddress  string
	arrangement string
	mode        string
	staticMode  bool

	updateRate float64
	midiRate   float64
	oscRate    float64
	midiQueue  int
	oscQueue   int
}

func parseFlags(fs *flag.FlagSet, args []string) (options, error) {
	var o options
	fs.BoolVar(&o.debug, "debug", false, "enable debug logging (adds source location)")
	fs.StringVar(&o.configPath, "config", "", "parameter table (.json, .yaml or .yml); built-in table when empty")
	fs.StringVar(&o.dumpConfig, "dump-config", "", "print the parameter table as yaml or json and exit")

	fs.StringVar(&o.midiOut, "midi-out", "rtmidi", "MIDI output: rtmidi, serial or log")
	fs.StringVar(&o.midiPort, "midi-port", "", "preferred MIDI output name substring (rtmidi)")
	fs.StringVar(&o.serial, "serial", "/dev/ttyUSB0", "serial device (serial MIDI output)")
	fs.IntVar(&o.baud, "baud", 115200, "serial baud rate")

	fs.StringVar(&o.oscListen, "osc-listen", "127.0.0.1:9000", "UDP address for incoming gesture OSC")
	fs.StringVar(&o.oscSend, "osc-send", "127.0.0.1:9001", "UDP address of the control surface")
	fs.StringVar(&o.oscAddress, "osc-address", eme.DefaultAddress, "OSC address for control-surface requests")
	fs.StringVar(&o.arrangement, "arrangement", eme.DefaultArrangement, "arrangement requested at startup (empty to skip)")

	fs.StringVar(&o.mode, "mode", "A", "surface quadrant to start in: A, B, C, or off for the full surface")
	fs.BoolVar(&o.staticMode, "static-mode", false, "keep the starting mode instead of changing it every 20-45s")

	fs.Float64Var(&o.updateRate, "update-rate", defaultUpdateRate, "parameter update rate in Hz")
	fs.Float64Var(&o.midiRate, "midi-rate", defaultMIDIRate, "MIDI send rate in Hz")
	fs.Float64Var(&o.oscRate, "osc-rate", defaultOSCRate, "control-surface send rate in Hz")
	fs.IntVar(&o.midiQueue, "midi-queue", defaultMIDIQueue, "MIDI dispatch queue capacity")
	fs.IntVar(&o.oscQueue, "osc-queue", defaultOSCQueue, "control-surface request queue capacity")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, o.validate()
}

func (o options) validate() error {
	var errs []error
	if o.updateRate <= 0 || o.midiRate <= 0 || o.oscRate <= 0 {
		errs = append(errs, errors.New("rates must be positive"))
	}
	if o.updateRate < o.midiRate || o.updateRate < o.oscRate {
		errs = append(errs, fmt.Errorf("update rate %v Hz must be at least the MIDI (%v Hz) and OSC (%v Hz) send rates",
			o.updateRate, o.midiRate, o.oscRate))
	}
	if o.midiQueue < 1 || o.oscQueue < 1 {
		errs = append(errs, errors.New("queue capacities must be at least 1"))
	}
	switch o.midiOut {
	case "rtmidi", "serial", "log":
	default:
		errs = append(errs, fmt.Errorf("unknown -midi-out %q", o.midiOut))
	}
	if !strings.HasPrefix(o.oscAddress, "/") {
		errs = append(errs, fmt.Errorf("-osc-address %q must start with /", o.oscAddress))
	}
	if o.mode != "off" {
		if _, err := mode.Parse(o.mode); err != nil {
			errs = append(errs, fmt.Errorf("-mode: %w", err))
		}
	}
	switch o.dumpConfig {
	case "", "yaml", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown -dump-config format %q", o.dumpConfig))
	}
	return errors.Join(errs...)
}

// -------------------- Assembly --------------------

func loadTable(o options) (*config.Table, error) {
	if o.configPath == "" {
		return config.DefaultTable(), nil
	}
	return config.LoadTable(o.configPath)
}

// retarget moves address parameters written for the default request address
// onto the configured one.
func retarget(t *config.Table, address string) {
	for i := range t.Parameters {
		d := &t.Parameters[i].Destination
		if d.Kind == param.DestAddress && d.Path == eme.DefaultAddress {
			d.Path = address
		}
	}
}

func openMIDIPort(o options) (midiout.Port, io.Closer, error) {
	switch o.midiOut {
	case "serial":
		sp, err := midiout.OpenSerial(o.serial, o.baud, logger)
		if err != nil {
			return nil, nil, err
		}
		return sp, sp, nil
	case "log":
		return midiout.NewLogPort(logger), io.NopCloser(nil), nil
	}
	preferred := PREFERRED_OUTPUT_PATTERNS
	if o.midiPort != "" {
		preferred = []string{o.midiPort}
	}
	rp, err := midiout.NewRTMIDIPort(
		midiout.WithPreferred(preferred...),
		midiout.WithPortLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}
	return rp, rp, nil
}

// -------------------- Main --------------------

func main() {
	o, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	initLogger(o.debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o); err != nil {
		logger.Error("gesturebridge: fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options) error {
	table, err := loadTable(o)
	if err != nil {
		return err
	}
	if o.dumpConfig != "" {
		return table.Encode(os.Stdout, o.dumpConfig)
	}
	retarget(table, o.oscAddress)

	store, err := param.NewStore(table.Parameters, param.WithUpdateRate(o.updateRate))
	if err != nil {
		return fmt.Errorf("parameter table: %w", err)
	}

	logger.Info("gesturebridge starting",
		"config", configName(o.configPath),
		"parameters", store.Len(),
		"midi_out", o.midiOut,
		"osc_listen", o.oscListen,
		"osc_send", o.oscSend,
		"osc_address", o.oscAddress,
		"update_hz", o.updateRate,
		"midi_hz", o.midiRate,
		"osc_hz", o.oscRate,
		"mode", o.mode,
		"static_mode", o.staticMode,
		"debug", o.debug,
	)

	frames := gesture.NewChannel()
	midiQ := queue.New[param.Delta](o.midiQueue)
	reqQ := queue.New[request.Request](o.oscQueue)

	engineOpts := []param.EngineOption{param.WithEngineLogger(logger)}
	modes, err := newModeController(o)
	if err != nil {
		return err
	}
	if modes != nil {
		engineOpts = append(engineOpts, param.WithHook(modes))
	}
	engine, err := param.NewEngine(store, frames, midiQ, reqQ, engineOpts...)
	if err != nil {
		return err
	}

	port, portCloser, err := openMIDIPort(o)
	if err != nil {
		return fmt.Errorf("midi output: %w", err)
	}
	defer portCloser.Close()

	midiSender, err := midiout.NewSender(midiQ, port, midiout.WithLogger(logger))
	if err != nil {
		return err
	}

	sock, err := request.DialUDP(o.oscSend)
	if err != nil {
		return fmt.Errorf("osc output: %w", err)
	}
	defer sock.Close()

	reqSender, err := request.NewSender(reqQ, eme.Serialize, sock,
		request.WithSenderLogger(logger),
		request.WithWriteAttempts(oscWriteAttempts),
	)
	if err != nil {
		return err
	}

	receiver, err := ingest.Listen(o.oscListen, frames, ingest.WithLogger(logger))
	if err != nil {
		return err
	}
	defer receiver.Close()

	if o.arrangement != "" {
		reqQ.TryPush(eme.Arrangement(o.oscAddress, o.arrangement))
	}
	reqQ.TryPush(eme.Playback(o.oscAddress, true))

	timers, err := startTimers(
		timerSpec{"engine", o.updateRate, engine.Tick},
		timerSpec{"midi-sender", o.midiRate, midiSender.Tick},
		timerSpec{"osc-sender", o.oscRate, reqSender.Tick},
	)
	if err != nil {
		return err
	}

	logger.Info("running - waiting for gesture data")
	<-ctx.Done()
	logger.Info("shutting down")

	if err := timer.StopAll(timers...); err != nil {
		logger.Warn("timer shutdown", "err", err)
	}

	// timers are gone; stop playback directly on the socket
	if data, err := eme.Serialize(eme.Playback(o.oscAddress, false)); err == nil {
		if _, err := sock.Write(data); err != nil {
			logger.Warn("osc: playback stop failed", "err", err)
		}
	}

	es, ms, rs, is := engine.Stats(), midiSender.Stats(), reqSender.Stats(), receiver.Stats()
	logger.Info("gesturebridge stopped",
		"engine_ticks", es.Ticks,
		"frames_applied", es.FramesApplied,
		"enqueued", es.Enqueued,
		"dropped", es.Dropped,
		"midi_sent", ms.Sent,
		"midi_failed", ms.Failed,
		"midi_bytes", ms.Bytes,
		"osc_sent", rs.Sent,
		"osc_failed", rs.Failed+rs.Invalid+rs.Expired,
		"packets_in", is.Packets,
	)
	for _, v := range store.Snapshot() {
		logger.Debug("final value", "param", v.ID, "current", v.Current, "target", v.Target)
	}
	return nil
}

// newModeController returns nil when modes are off.
func newModeController(o options) (*mode.Controller, error) {
	if o.mode == "off" {
		return nil, nil
	}
	initial, err := mode.Parse(o.mode)
	if err != nil {
		return nil, err
	}
	opts := []mode.Option{mode.WithLogger(logger)}
	if o.staticMode {
		opts = append(opts, mode.Static())
	}
	return mode.New(initial, opts...)
}

type timerSpec struct {
	name string
	hz   float64
	job  timer.Job
}

// startTimers starts every timer or none: on a failure the ones already
// running are stopped again.
func startTimers(specs ...timerSpec) ([]*timer.Timer, error) {
	var timers []*timer.Timer
	for _, s := range specs {
		t, err := timer.NewHz(s.name, s.hz, s.job, timer.WithLogger(logger))
		if err == nil {
			err = t.Start()
		}
		if err != nil {
			_ = timer.StopAll(timers...)
			return nil, err
		}
		timers = append(timers, t)
	}
	return timers, nil
}

func configName(path string) string {
	if path == "" {
		return "built-in"
	}
	return filepath.Base(path)
}
