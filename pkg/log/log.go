// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
)

// Provides a simple way of logging with different levels.
// Time/Date are not logged because systemd adds
// them for us (default, can be changed with SetLogDateTime).
//
// Uses these prefixes: https://www.freedesktop.org/software/systemd/man/sd-daemon.html

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
	levelCrit
)

var logDateTime bool
var threshold level = levelDebug

var prefix = map[level]string{
	levelDebug: "<7>[DEBUG]    ",
	levelInfo:  "<6>[INFO]     ",
	levelWarn:  "<4>[WARNING]  ",
	levelError: "<3>[ERROR]    ",
	levelCrit:  "<2>[CRITICAL] ",
}

var baseFlags = map[level]int{
	levelDebug: 0,
	levelInfo:  0,
	levelWarn:  stdlog.Lshortfile,
	levelError: stdlog.Llongfile,
	levelCrit:  stdlog.Llongfile,
}

var loggers = map[level]*stdlog.Logger{
	levelDebug: stdlog.New(os.Stderr, prefix[levelDebug], baseFlags[levelDebug]),
	levelInfo:  stdlog.New(os.Stderr, prefix[levelInfo], baseFlags[levelInfo]),
	levelWarn:  stdlog.New(os.Stderr, prefix[levelWarn], baseFlags[levelWarn]),
	levelError: stdlog.New(os.Stderr, prefix[levelError], baseFlags[levelError]),
	levelCrit:  stdlog.New(os.Stderr, prefix[levelCrit], baseFlags[levelCrit]),
}

/* CONFIG */

func SetLogLevel(lvl string) {
	switch lvl {
	case "crit":
		threshold = levelCrit
	case "err", "fatal":
		threshold = levelError
	case "warn":
		threshold = levelWarn
	case "info":
		threshold = levelInfo
	case "debug":
		threshold = levelDebug
	default:
		fmt.Printf("pkg/log: flag 'loglevel' has invalid value %#v\npkg/log: will use default loglevel 'debug'\n", lvl)
		threshold = levelDebug
	}
}

func SetLogDateTime(logdate bool) {
	logDateTime = logdate
	for lvl, l := range loggers {
		flag := baseFlags[lvl]
		if logdate {
			flag |= stdlog.LstdFlags
		}
		l.SetFlags(flag)
	}
}

// SetOutput redirects every level's writer, mainly for tests.
func SetOutput(w io.Writer) {
	for _, l := range loggers {
		l.SetOutput(w)
	}
}

func write(lvl level, out string) {
	if lvl < threshold {
		return
	}
	// calldepth 3: write -> level helper (e.g. Info) -> caller
	_ = loggers[lvl].Output(3, out)
}

/* PRINT */

func Print(v ...interface{}) { Info(v...) }
func Debug(v ...interface{}) { write(levelDebug, fmt.Sprint(v...)) }
func Info(v ...interface{})  { write(levelInfo, fmt.Sprint(v...)) }
func Warn(v ...interface{})  { write(levelWarn, fmt.Sprint(v...)) }
func Error(v ...interface{}) { write(levelError, fmt.Sprint(v...)) }
func Crit(v ...interface{})  { write(levelCrit, fmt.Sprint(v...)) }

// Panic writes an error log entry, then panics, keeping the stacktrace.
func Panic(v ...interface{}) {
	Error(v...)
	panic("panic triggered: " + fmt.Sprint(v...))
}

// Fatal writes an error log entry, then stops the process.
func Fatal(v ...interface{}) {
	Error(v...)
	os.Exit(1)
}

/* PRINT FORMAT */

func Printf(format string, v ...interface{}) { Infof(format, v...) }
func Debugf(format string, v ...interface{}) { write(levelDebug, fmt.Sprintf(format, v...)) }
func Infof(format string, v ...interface{})  { write(levelInfo, fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...interface{})  { write(levelWarn, fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...interface{}) { write(levelError, fmt.Sprintf(format, v...)) }
func Critf(format string, v ...interface{})  { write(levelCrit, fmt.Sprintf(format, v...)) }

func Panicf(format string, v ...interface{}) {
	Errorf(format, v...)
	panic("panic triggered: " + fmt.Sprintf(format, v...))
}

func Fatalf(format string, v ...interface{}) {
	Errorf(format, v...)
	os.Exit(1)
}
