// Package logging provides categorized logging for studymate on top of zap.
// Each subsystem logs through a named category so a single turn can be
// traced across the gate, classifier, pipeline, and orchestrator. Until
// Initialize is called, all logging is a silent no-op, which keeps pure
// components usable from tests without setup.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot         Category = "boot"
	CategorySession      Category = "session"
	CategoryAPI          Category = "api"          // LLM API calls
	CategorySafety       Category = "safety"       // Safety gate decisions
	CategoryIntent       Category = "intent"       // Intent classification
	CategoryPractice     Category = "practice"     // Practice protocol transitions
	CategoryResearch     Category = "research"     // Research pipeline
	CategoryVideo        Category = "video"        // Video relevance matching
	CategorySanitize     Category = "sanitize"     // Output sanitization
	CategoryOrchestrator Category = "orchestrator" // Turn sequencing
	CategoryStore        Category = "store"        // Session store
	CategoryConfig       Category = "config"       // Config/policy loading
)

// Logger wraps a sugared zap logger bound to one category.
type Logger struct {
	s *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	root    *zap.Logger
	loggers = make(map[Category]*Logger)
)

// Initialize installs the process logger. Call once at startup, after the
// cmd layer has built its zap.Logger.
func Initialize(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	root = l
	loggers = make(map[Category]*Logger)
}

// Get returns the logger for a category.
func Get(category Category) *Logger {
	mu.RLock()
	if lg, ok := loggers[category]; ok {
		mu.RUnlock()
		return lg
	}
	r := root
	mu.RUnlock()

	if r == nil {
		r = zap.NewNop()
	}
	lg := &Logger{s: r.Named(string(category)).WithOptions(zap.AddCallerSkip(1)).Sugar()}

	mu.Lock()
	loggers[category] = lg
	mu.Unlock()
	return lg
}

// Enabled reports whether debug-level logging is active.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return root != nil && root.Core().Enabled(zapcore.DebugLevel)
}

func (l *Logger) Debug(format string, args ...interface{}) { l.s.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.s.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.s.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.s.Errorf(format, args...) }

// Convenience helpers, one pair per category, matching call sites like
// logging.Research("planned %d queries", n).

func Session(format string, args ...interface{})      { Get(CategorySession).Info(format, args...) }
func SessionDebug(format string, args ...interface{}) { Get(CategorySession).Debug(format, args...) }

func API(format string, args ...interface{})      { Get(CategoryAPI).Info(format, args...) }
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }

func Safety(format string, args ...interface{})      { Get(CategorySafety).Info(format, args...) }
func SafetyDebug(format string, args ...interface{}) { Get(CategorySafety).Debug(format, args...) }

func Intent(format string, args ...interface{})      { Get(CategoryIntent).Info(format, args...) }
func IntentDebug(format string, args ...interface{}) { Get(CategoryIntent).Debug(format, args...) }

func Practice(format string, args ...interface{}) { Get(CategoryPractice).Info(format, args...) }
func PracticeDebug(format string, args ...interface{}) {
	Get(CategoryPractice).Debug(format, args...)
}

func Research(format string, args ...interface{})      { Get(CategoryResearch).Info(format, args...) }
func ResearchDebug(format string, args ...interface{}) { Get(CategoryResearch).Debug(format, args...) }

func Video(format string, args ...interface{})      { Get(CategoryVideo).Info(format, args...) }
func VideoDebug(format string, args ...interface{}) { Get(CategoryVideo).Debug(format, args...) }

func Orchestrator(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Info(format, args...)
}
func OrchestratorDebug(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Debug(format, args...)
}

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

func Config(format string, args ...interface{})      { Get(CategoryConfig).Info(format, args...) }
func ConfigDebug(format string, args ...interface{}) { Get(CategoryConfig).Debug(format, args...) }
