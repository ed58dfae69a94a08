// Package progress renders pipeline phase progress. On an interactive
// terminal it draws a progress bar; otherwise it logs phase transitions so
// non-interactive runs still show liveness.
package progress

import (
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"cleave/internal/logging"
)

// Sink receives phase progress from the pipeline.
type Sink interface {
	// StartPhase begins a named phase with a known unit total.
	StartPhase(name string, total int64)
	// Add advances the current phase.
	Add(n int64)
	// FinishPhase completes the current phase.
	FinishPhase()
}

// New selects a Sink for the writer: a bar when the writer is a terminal,
// log lines otherwise.
func New(w io.Writer, logger *slog.Logger) Sink {
	if file, ok := w.(*os.File); ok && isatty.IsTerminal(file.Fd()) {
		return &barSink{writer: w}
	}
	return &logSink{logger: logging.NewComponentLogger(logger, "progress")}
}

// Discard returns a Sink that drops all updates.
func Discard() Sink {
	return nopSink{}
}

type barSink struct {
	mu     sync.Mutex
	writer io.Writer
	bar    *progressbar.ProgressBar
}

func (s *barSink) StartPhase(name string, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(name),
		progressbar.OptionSetWriter(s.writer),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func (s *barSink) Add(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar != nil {
		_ = s.bar.Add64(n)
	}
}

func (s *barSink) FinishPhase() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar != nil {
		_ = s.bar.Finish()
		s.bar = nil
	}
}

type logSink struct {
	mu      sync.Mutex
	logger  *slog.Logger
	name    string
	total   int64
	current int64
}

func (s *logSink) StartPhase(name string, total int64) {
	s.mu.Lock()
	s.name = name
	s.total = total
	s.current = 0
	s.mu.Unlock()
	s.logger.Info("phase started", logging.String("phase", name), logging.Int64("total", total))
}

func (s *logSink) Add(n int64) {
	s.mu.Lock()
	s.current += n
	s.mu.Unlock()
}

func (s *logSink) FinishPhase() {
	s.mu.Lock()
	name, current, total := s.name, s.current, s.total
	s.name = ""
	s.mu.Unlock()
	if name == "" {
		return
	}
	s.logger.Info("phase finished",
		logging.String("phase", name),
		logging.Int64("completed", current),
		logging.Int64("total", total),
	)
}

type nopSink struct{}

func (nopSink) StartPhase(string, int64) {}
func (nopSink) Add(int64)                {}
func (nopSink) FinishPhase()             {}
