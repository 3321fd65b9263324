// Package main provides the gastmeting CLI application.
//
// Gastmeting runs an NFC check-in/check-out kiosk that keeps working
// offline. Taps are recorded in a local store and synchronised with a
// remote session store whenever it is reachable.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/0xmhha/gastmeting/pkg/scan"
)

// version is set during build time.
var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps the kind of a command error to the process exit status.
// Anything without a kind exits with 1.
func exitCode(err error) int {
	switch scan.KindOf(err) {
	case scan.ErrInvalid:
		return 2
	case scan.ErrNotFound:
		return 3
	case scan.ErrConflict:
		return 4
	case scan.ErrStoreUnavailable:
		return 5
	case scan.ErrRemote, scan.ErrMalformedPayload:
		return 6
	default:
		return 1
	}
}

// run parses global flags and dispatches the command.
func run(args []string, out io.Writer) error {
	fs := newFlagSet("gastmeting", out)
	configPath := fs.String("config", "", "path to configuration file")
	showVersion := fs.Bool("version", false, "show version information")
	fs.Usage = func() { showUsage(out) }

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return err
	}

	if *showVersion {
		fmt.Fprintf(out, "gastmeting %s\n", version)
		return nil
	}

	rest := fs.Args()
	if len(rest) == 0 {
		showUsage(out)
		return nil
	}

	opts := globalOptions{configPath: *configPath, out: out}
	return dispatch(opts, rest[0], rest[1:])
}

// executor is a parsed command ready to run.
type executor interface {
	Execute() error
}

// parseCommand maps a command name and its arguments to an executor.
func parseCommand(opts globalOptions, name string, args []string) (executor, error) {
	var (
		cmd executor
		err error
	)
	switch name {
	case "run":
		cmd, err = asExecutor(parseRunArgs(opts, args))
	case "checkin":
		cmd, err = asExecutor(parseCheckinArgs(opts, args))
	case "checkout":
		cmd, err = asExecutor(parseCheckoutArgs(opts, args))
	case "lookup", "inspect":
		cmd, err = asExecutor(parseLookupArgs(opts, args))
	case "sessions":
		cmd, err = asExecutor(parseSessionsArgs(opts, args))
	case "queue":
		cmd, err = asExecutor(parseQueueArgs(opts, args))
	case "sync":
		cmd, err = asExecutor(parseSyncArgs(opts, args))
	case "status":
		cmd, err = asExecutor(parseStatusArgs(opts, args))
	case "stats":
		cmd, err = asExecutor(parseStatsArgs(opts, args))
	case "export":
		cmd, err = asExecutor(parseExportArgs(opts, args))
	default:
		return nil, fmt.Errorf("unknown command: %s", name)
	}
	return cmd, err
}

// asExecutor keeps a nil command pointer from becoming a non-nil executor.
func asExecutor[T executor](cmd T, err error) (executor, error) {
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

func dispatch(opts globalOptions, name string, args []string) error {
	switch name {
	case "config":
		cmd := &configCommand{opts: opts, in: os.Stdin}
		return cmd.Execute(args)
	case "help":
		showUsage(opts.out)
		return nil
	}

	cmd, err := parseCommand(opts, name, args)
	if err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return err
	}
	return cmd.Execute()
}

// showUsage displays usage information.
func showUsage(w io.Writer) {
	usage := `Gastmeting - offline-first NFC guest check-in kiosk

Usage:
  gastmeting [flags] <command> [command flags]

Commands:
  run         Run the kiosk: read wristbands, check guests in and out, sync
  checkin     Check a tag in by hand
  checkout    Check a tag out by hand
  lookup      Show the active or recent session of a tag (alias: inspect)
  sessions    List locally cached sessions
  queue       List operations waiting to be synced
  sync        Run one sync cycle now
  status      Show pending operations and remote reachability
  stats       Display visitor statistics
  export      Export sessions (xlsx, csv, json)
  config      Configuration management (show, path, reset)
  help        Show this help message

Global Flags:
  -config     Path to configuration file
  -version    Show version information

Examples:
  # Run the kiosk with a keyboard-wedge reader
  gastmeting run

  # Run the kiosk from a spool directory with hotel guests by default
  gastmeting run -source spool -spool-dir /var/spool/nfc -type hotelgast

  # Check a family in and push it immediately
  gastmeting checkin -type zwembadgast -adults 2 -children 3 -sync 04A1B2C3

  # Who is inside right now
  gastmeting sessions -active

  # Visitors per guest type today
  gastmeting stats -group-by type -date 2026-07-01

  # Export today's visits to Excel
  gastmeting export -date 2026-07-01 -output visits.xlsx

Only one process can open the local store at a time; stop the kiosk before
running the other commands against the same database.

Version: %s
`
	fmt.Fprintf(w, usage, version)
}
