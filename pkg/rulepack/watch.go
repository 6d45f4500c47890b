package rulepack

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// CompileEvent is one structured event emitted per debounced compile
// during WatchCompile.
type CompileEvent struct {
	At       time.Time      `json:"at"`
	Category string         `json:"category"`
	Report   CompileReport  `json:"report,omitempty"`
	Err      string         `json:"error,omitempty"`
}

// WatchReason is why WatchCompile stopped.
type WatchReason string

const (
	ReasonDeadlineReached WatchReason = "deadline_reached"
	ReasonMaxEvents       WatchReason = "max_events"
	ReasonWatcherError    WatchReason = "watcher_error"
	ReasonCompileFailed   WatchReason = "compile_failed"
	ReasonStopped         WatchReason = "stopped"
)

// WatchCompile watches paths' source and control-plane directories,
// debounces bursts of filesystem events, runs an initial compile, then
// recompiles on every settled burst until maxEvents compiles have run or
// watchSeconds elapses (0 means run until stopped or an error occurs).
// A compile failure inside the loop stops the watcher with ReasonCompileFailed;
// a watcher-level error stops it with ReasonWatcherError.
func (c Compiler) WatchCompile(paths Paths, inputFn func() (SourceInput, error), debounce time.Duration, maxEvents int, watchSeconds int, logger *slog.Logger, events chan<- CompileEvent) (WatchReason, error) {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return ReasonWatcherError, fmt.Errorf("rulepack: watch %s: %w", paths.Category, err)
	}
	defer watcher.Close()

	for _, dir := range []string{paths.SourceDir(), paths.ControlPlaneDir()} {
		if err := watcher.Add(dir); err != nil {
			logger.Warn("rulepack watch: cannot watch directory", "dir", dir, "error", err)
		}
	}

	runCompile := func() CompileEvent {
		input, err := inputFn()
		if err != nil {
			return CompileEvent{At: compileNow(), Category: paths.Category, Err: err.Error()}
		}
		report, err := c.Compile(paths, input, false)
		if err != nil {
			return CompileEvent{At: compileNow(), Category: paths.Category, Err: err.Error()}
		}
		return CompileEvent{At: compileNow(), Category: paths.Category, Report: report}
	}

	emit := func(ev CompileEvent) {
		if events != nil {
			events <- ev
		}
	}

	compileCount := 0
	initial := runCompile()
	compileCount++
	emit(initial)
	if initial.Err != "" {
		return ReasonCompileFailed, fmt.Errorf("rulepack: initial compile failed: %s", initial.Err)
	}

	var deadline <-chan time.Time
	if watchSeconds > 0 {
		deadline = time.After(time.Duration(watchSeconds) * time.Second)
	}

	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	pending := false

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return ReasonWatcherError, fmt.Errorf("rulepack: watch %s: events channel closed", paths.Category)
			}
			logger.Debug("rulepack watch: fs event", "name", ev.Name, "op", ev.Op.String())
			pending = true
			debounceTimer.Reset(debounce)

		case werr, ok := <-watcher.Errors:
			if !ok {
				return ReasonWatcherError, fmt.Errorf("rulepack: watch %s: errors channel closed", paths.Category)
			}
			return ReasonWatcherError, fmt.Errorf("rulepack: watch %s: %w", paths.Category, werr)

		case <-debounceTimer.C:
			if !pending {
				continue
			}
			pending = false
			result := runCompile()
			compileCount++
			emit(result)
			if result.Err != "" {
				return ReasonCompileFailed, fmt.Errorf("rulepack: watch %s: compile failed: %s", paths.Category, result.Err)
			}
			if maxEvents > 0 && compileCount >= maxEvents {
				return ReasonMaxEvents, nil
			}

		case <-deadline:
			return ReasonDeadlineReached, nil
		}
	}
}

// compileNow timestamps compile events; it is a thin indirection over
// time.Now kept out of the hot path elsewhere.
func compileNow() time.Time { return time.Now() }
