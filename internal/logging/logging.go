// Package logging wires up the structured logger every DCFS package logs
// through. It follows the same pattern as blobstash's top-level logger:
// a single root configured once at startup, handed out as named children.
package logging

import (
	"os"

	log "github.com/inconshreveable/log15"
)

var root = log.New()

func init() {
	root.SetHandler(log.StreamHandler(os.Stderr, log.TerminalFormat()))
}

// SetLevel configures the minimum level the root logger (and therefore
// every child logger derived from it) emits, keeping the current format.
func SetLevel(lvl log.Lvl) {
	root.SetHandler(log.LvlFilterHandler(lvl, log.StreamHandler(os.Stderr, currentFormat)))
}

var currentFormat = log.TerminalFormat()

// SetForeground selects the log line format: TerminalFormat (color,
// human-aligned) when attached to an interactive terminal, LogfmtFormat
// otherwise. bazil.org/fuse gives DCFS no real daemonization step to
// hook - unlike original_source/src/main.c's fuse_daemonize - so this is
// the foreground/background distinction cmd/dcfs's --foreground flag
// actually controls.
func SetForeground(fg bool) {
	if fg {
		currentFormat = log.TerminalFormat()
	} else {
		currentFormat = log.LogfmtFormat()
	}
	root.SetHandler(log.StreamHandler(os.Stderr, currentFormat))
}

// New returns a child logger tagged with "component"=name, the way
// cih-y2k-blobstash tags its per-subsystem loggers.
func New(component string) log.Logger {
	return root.New("component", component)
}

// LvlFromString parses a config-supplied log level name, defaulting to
// "info" on empty input. It panics on an unparseable non-empty value, the
// same behavior cih-y2k-blobstash's Config.LogLvl has — a bad log level
// is a startup-time configuration error, not a runtime one.
func LvlFromString(s string) log.Lvl {
	if s == "" {
		s = "info"
	}
	lvl, err := log.LvlFromString(s)
	if err != nil {
		panic(err)
	}
	return lvl
}
