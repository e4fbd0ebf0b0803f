// Package filesink implements messenger.FileSink on top of logrus, writing
// one line per call to a run's log file.
package filesink

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mediacrew/checkflow/internal/messenger"
)

// taskColumnWidth is the width the task-name column is padded to, matching
// the original FileMessenger's fixed-width alignment.
const taskColumnWidth = 35

// Sink writes status, problem, and debug records to w via logrus, one
// record per call.
type Sink struct {
	log *logrus.Logger
}

// New returns a Sink writing to w. Every record is emitted regardless of
// logrus's own level filtering — callers choose what to log by calling
// LogStatus/LogProblem/LogDebug, not by level threshold.
func New(w io.Writer) *Sink {
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(logrus.TraceLevel)
	log.SetFormatter(&recordFormatter{})
	return &Sink{log: log}
}

func column(taskName string) string {
	if len(taskName) >= taskColumnWidth {
		return taskName
	}
	return taskName + strings.Repeat(" ", taskColumnWidth-len(taskName))
}

// LogStatus writes a status-change record.
func (s *Sink) LogStatus(taskName string, status messenger.Status, message string) {
	s.log.WithField("kind", "status").Info(fmt.Sprintf("[%s] %s: %s", column(taskName), status, message))
}

// LogProblem writes a problem record, with the stacktrace (if any)
// appended on indented continuation lines.
func (s *Sink) LogProblem(taskName string, level messenger.ProblemLevel, message string, stacktrace string) {
	line := fmt.Sprintf("[%s] %s", column(taskName), message)
	if stacktrace != "" {
		line += "\n" + indent(stacktrace)
	}
	entry := s.log.WithField("kind", "problem")
	switch level {
	case messenger.Warn:
		entry.Warn(line)
	case messenger.Fatal:
		entry.WithField("fatal", true).Error(line)
	default:
		entry.Error(line)
	}
}

// LogDebug writes a file-only diagnostic record.
func (s *Sink) LogDebug(taskName string, message string) {
	s.log.WithField("kind", "debug").Debug(fmt.Sprintf("[%s] %s", column(taskName), message))
}

// Close is a no-op: the Sink doesn't own the underlying writer's lifecycle.
func (s *Sink) Close() {}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}

// recordFormatter renders "[LEVEL   ] [HH:MM:SS] message", matching the
// original FileMessenger's handler format string.
type recordFormatter struct{}

func (f *recordFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	level := strings.ToUpper(entry.Level.String())
	if fatal, _ := entry.Data["fatal"].(bool); fatal {
		level = "CRITICAL"
	}
	line := fmt.Sprintf("[%-8s] [%s] %s\n", level, entry.Time.Format("15:04:05"), entry.Message)
	return []byte(line), nil
}
