// Package log provides leveled logging for hxhim processes.
// Time/date are not logged by default because most HPC job launchers
// (srun, jsrun, mpirun) already timestamp captured stdout/stderr; pass
// -logdate to add it back.
// Levels follow the DEBUG_LEVEL config option:
// EMERG, ALERT, CRIT, ERR, WARNING, NOTICE, INFO, DBG1, DBG2, DBG3.
// DBG1-3 all write through the same DEBUG writer/logger; they exist so
// callers can tag a message's debug verbosity without the logging
// package itself needing three separate writers for what is, in
// practice, one log stream.
package log

import (
	"fmt"
	"io"
	"log"
	"os"
)

var logDateTime bool

var (
	DebugWriter io.Writer = os.Stderr
	NoteWriter  io.Writer = os.Stderr
	InfoWriter  io.Writer = os.Stderr
	WarnWriter  io.Writer = os.Stderr
	ErrWriter   io.Writer = os.Stderr
	CritWriter  io.Writer = os.Stderr
)

var (
	DebugPrefix string = "<7>[DEBUG]    "
	InfoPrefix  string = "<6>[INFO]     "
	NotePrefix  string = "<5>[NOTICE]   "
	WarnPrefix  string = "<4>[WARNING]  "
	ErrPrefix   string = "<3>[ERROR]    "
	CritPrefix  string = "<2>[CRITICAL] "
)

var (
	DebugLog *log.Logger = log.New(DebugWriter, DebugPrefix, 0)
	InfoLog  *log.Logger = log.New(InfoWriter, InfoPrefix, 0)
	NoteLog  *log.Logger = log.New(NoteWriter, NotePrefix, log.Lshortfile)
	WarnLog  *log.Logger = log.New(WarnWriter, WarnPrefix, log.Lshortfile)
	ErrLog   *log.Logger = log.New(ErrWriter, ErrPrefix, log.Llongfile)
	CritLog  *log.Logger = log.New(CritWriter, CritPrefix, log.Llongfile)

	DebugTimeLog *log.Logger = log.New(DebugWriter, DebugPrefix, log.LstdFlags)
	InfoTimeLog  *log.Logger = log.New(InfoWriter, InfoPrefix, log.LstdFlags)
	NoteTimeLog  *log.Logger = log.New(NoteWriter, NotePrefix, log.LstdFlags|log.Lshortfile)
	WarnTimeLog  *log.Logger = log.New(WarnWriter, WarnPrefix, log.LstdFlags|log.Lshortfile)
	ErrTimeLog   *log.Logger = log.New(ErrWriter, ErrPrefix, log.LstdFlags|log.Llongfile)
	CritTimeLog  *log.Logger = log.New(CritWriter, CritPrefix, log.LstdFlags|log.Llongfile)
)

// SetLogDate toggles date/time prefixes on all levels.
func SetLogDate(on bool) {
	logDateTime = on
}

// SetLogLevel mutes writers below lvl. Valid values (loudest to
// quietest, matching DEBUG_LEVEL): "dbg3", "dbg2", "dbg1", "debug",
// "info", "notice", "warn", "err"/"fatal", "crit".
func SetLogLevel(lvl string) {
	switch lvl {
	case "crit":
		ErrWriter = io.Discard
		fallthrough
	case "err", "fatal":
		WarnWriter = io.Discard
		fallthrough
	case "warn":
		NoteWriter = io.Discard
		fallthrough
	case "notice":
		InfoWriter = io.Discard
		fallthrough
	case "info":
		DebugWriter = io.Discard
	case "debug", "dbg1", "dbg2", "dbg3":
		// nothing discarded: every level logs
	}
	rebuild()
}

func rebuild() {
	flags := 0
	lflags := log.LstdFlags
	if logDateTime {
		flags = log.LstdFlags
	}
	DebugLog = log.New(DebugWriter, DebugPrefix, flags)
	InfoLog = log.New(InfoWriter, InfoPrefix, flags)
	NoteLog = log.New(NoteWriter, NotePrefix, flags|log.Lshortfile)
	WarnLog = log.New(WarnWriter, WarnPrefix, flags|log.Lshortfile)
	ErrLog = log.New(ErrWriter, ErrPrefix, flags|log.Llongfile)
	CritLog = log.New(CritWriter, CritPrefix, flags|log.Llongfile)

	DebugTimeLog = log.New(DebugWriter, DebugPrefix, lflags)
	InfoTimeLog = log.New(InfoWriter, InfoPrefix, lflags)
	NoteTimeLog = log.New(NoteWriter, NotePrefix, lflags|log.Lshortfile)
	WarnTimeLog = log.New(WarnWriter, WarnPrefix, lflags|log.Lshortfile)
	ErrTimeLog = log.New(ErrWriter, ErrPrefix, lflags|log.Llongfile)
	CritTimeLog = log.New(CritWriter, CritPrefix, lflags|log.Llongfile)
}

func active() *log.Logger {
	if logDateTime {
		return DebugTimeLog
	}
	return DebugLog
}

func Debug(args ...any)            { active().Print(args...) }
func Debugf(f string, args ...any) { active().Printf(f, args...) }

func Info(args ...any)            { pick(InfoLog, InfoTimeLog).Print(args...) }
func Infof(f string, args ...any) { pick(InfoLog, InfoTimeLog).Printf(f, args...) }

func Notice(args ...any)            { pick(NoteLog, NoteTimeLog).Print(args...) }
func Noticef(f string, args ...any) { pick(NoteLog, NoteTimeLog).Printf(f, args...) }

func Warn(args ...any)            { pick(WarnLog, WarnTimeLog).Print(args...) }
func Warnf(f string, args ...any) { pick(WarnLog, WarnTimeLog).Printf(f, args...) }

func Err(args ...any)            { pick(ErrLog, ErrTimeLog).Print(args...) }
func Errf(f string, args ...any) { pick(ErrLog, ErrTimeLog).Printf(f, args...) }

// Abortf logs at CRIT and terminates the process. Used for
// configuration failures.
func Abortf(f string, args ...any) {
	pick(CritLog, CritTimeLog).Printf(f, args...)
	os.Exit(1)
}

// Exit logs a notice and terminates with status 0.
func Exit(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(0)
}

func pick(plain, withTime *log.Logger) *log.Logger {
	if logDateTime {
		return withTime
	}
	return plain
}
