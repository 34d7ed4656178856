// Copyright 2015 Ka-Hing Cheung
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package internal

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var mu sync.Mutex
var loggers = make(map[string]*logHandle)

var framePlaceHolder = runtime.Frame{Function: "???", File: "???", Line: 0}

// Log settings applied to loggers created after the call as well.
var (
	curLevel    = logrus.InfoLevel
	curOutput   io.Writer
	curLogID    string
	colorOff    bool
	logFileOpen bool
)

type logHandle struct {
	logrus.Logger

	name     string
	logid    string
	pid      int
	colorful bool
}

func (l *logHandle) Format(e *logrus.Entry) ([]byte, error) {
	lvlStr := strings.ToUpper(e.Level.String())
	if l.colorful {
		var color int
		switch e.Level {
		case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
			color = 31 // RED
		case logrus.WarnLevel:
			color = 33 // YELLOW
		case logrus.InfoLevel:
			color = 34 // BLUE
		default: // logrus.TraceLevel, logrus.DebugLevel
			color = 35 // MAGENTA
		}
		lvlStr = fmt.Sprintf("\033[1;%dm%s\033[0m", color, lvlStr)
	}
	const timeFormat = "2006/01/02 15:04:05.000000"
	caller := e.Caller
	if caller == nil {
		caller = &framePlaceHolder
	}
	prefix := ""
	if l.logid != "" {
		prefix = "[" + l.logid + "] "
	}
	str := fmt.Sprintf("%s%v %s[%d] <%v>: %v [%s@%s:%d]",
		prefix,
		e.Time.Format(timeFormat),
		l.name,
		l.pid,
		lvlStr,
		strings.TrimRight(e.Message, "\n"),
		MethodName(caller.Function),
		path.Base(caller.File),
		caller.Line)

	if len(e.Data) != 0 {
		str += " " + fmt.Sprint(e.Data)
	}
	return []byte(str + "\n"), nil
}

// MethodName strips the package path from a runtime function name and
// resolves closures to their enclosing method.
func MethodName(fullFuncName string) string {
	firstSlash := strings.Index(fullFuncName, "/")
	if firstSlash != -1 && firstSlash < len(fullFuncName)-1 {
		fullFuncName = fullFuncName[firstSlash+1:]
	}
	lastDot := strings.LastIndex(fullFuncName, ".")
	if lastDot == -1 || lastDot == len(fullFuncName)-1 {
		return fullFuncName
	}
	method := fullFuncName[lastDot+1:]
	// func1, func2 ...
	if strings.HasPrefix(method, "func") && len(method) > 4 && method[4] >= '0' && method[4] <= '9' {
		if candidate := MethodName(fullFuncName[:lastDot]); candidate != "" {
			method = candidate
		}
	}
	// init.0, deferwrap1.2 ...
	if len(method) == 1 && method[0] >= '0' && method[0] <= '9' {
		if candidate := MethodName(fullFuncName[:lastDot]); candidate != "" {
			method = candidate
		}
	}
	return method
}

// Log lets a handle serve as a plain logging sink for SDK clients.
func (l *logHandle) Log(args ...interface{}) {
	l.Debugln(args...)
}

func newLogger(name string) *logHandle {
	l := &logHandle{
		Logger:   *logrus.New(),
		name:     name,
		pid:      os.Getpid(),
		logid:    curLogID,
		colorful: !colorOff,
	}
	l.Formatter = l
	l.Level = curLevel
	if curOutput != nil {
		l.SetOutput(curOutput)
	}
	l.SetReportCaller(true)
	return l
}

// GetLogger returns the logger registered under name, creating it on first use.
func GetLogger(name string) *logHandle {
	mu.Lock()
	defer mu.Unlock()

	if logger, ok := loggers[name]; ok {
		return logger
	}
	logger := newLogger(name)
	loggers[name] = logger
	return logger
}

func SetLogLevel(lvl logrus.Level) {
	mu.Lock()
	defer mu.Unlock()
	curLevel = lvl
	for _, logger := range loggers {
		logger.Level = lvl
	}
}

// ParseLogLevel maps the CLI level names onto logrus levels, falling back to info.
func ParseLogLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func DisableLogColor() {
	mu.Lock()
	defer mu.Unlock()
	colorOff = true
	for _, logger := range loggers {
		logger.colorful = false
	}
}

// StderrIsTerminal reports whether stderr is attached to a terminal.
func StderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// SetOutFile sends all log output to a daily rotated file; name is a symlink
// to the current one.
func SetOutFile(name string) error {
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return fmt.Errorf("failed to create log dir for %s: %w", name, err)
	}
	logf, err := rotatelogs.New(
		name+".%Y%m%d",
		rotatelogs.WithLinkName(name),
		rotatelogs.WithMaxAge(7*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithRotationSize(100*1024*1024),
	)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", name, err)
	}

	mu.Lock()
	defer mu.Unlock()
	curOutput = logf
	colorOff = true
	logFileOpen = true
	for _, logger := range loggers {
		logger.SetOutput(logf)
		logger.colorful = false
	}
	return nil
}

// LogToFile reports whether SetOutFile has redirected the loggers.
func LogToFile() bool {
	mu.Lock()
	defer mu.Unlock()
	return logFileOpen
}

func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	curOutput = w
	for _, logger := range loggers {
		logger.SetOutput(w)
	}
}

func SetLogID(id string) {
	mu.Lock()
	defer mu.Unlock()
	curLogID = id
	for _, logger := range loggers {
		logger.logid = id
	}
}

// GetDefaultLogDir is /var/log/fidxsync for root on linux and ~/.fidxsync/log otherwise.
func GetDefaultLogDir() string {
	if runtime.GOOS == "linux" && os.Getuid() == 0 {
		return "/var/log/fidxsync"
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "fidxsync")
	}
	return filepath.Join(homeDir, ".fidxsync", "log")
}
