// Package logging provides config-driven categorized logging for sheetwright.
// Every category is a named child of one zap logger; until Initialize is
// called all categories discard their output.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sheetwright/internal/config"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config, runtime bootstrap
	CategorySession  Category = "session"  // Session lifecycle
	CategoryAPI      Category = "api"      // Generation service calls
	CategorySandbox  Category = "sandbox"  // Interpreter, workspace, script execution
	CategoryPipeline Category = "pipeline" // Orchestrator state transitions
	CategoryUsage    Category = "usage"    // Daily quota accounting
	CategoryStore    Category = "store"    // Local key-value storage
	CategoryServer   Category = "server"   // HTTP surface
	CategoryWorkbook Category = "workbook" // Spreadsheet parsing
)

var (
	mu       sync.RWMutex
	root     = zap.NewNop()
	cfg      config.LoggingConfig
	children = make(map[Category]*zap.SugaredLogger)
)

// Initialize builds the root zap logger from config.
// Should be called once at startup.
func Initialize(c config.LoggingConfig) (*zap.Logger, error) {
	var zc zap.Config
	if strings.EqualFold(c.Format, "json") {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level, err := zapcore.ParseLevel(defaultString(c.Level, "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	if c.File != "" {
		zc.OutputPaths = append(zc.OutputPaths, c.File)
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	SetLogger(logger, c)
	Get(CategoryBoot).Debugf("logging initialized: level=%s format=%s file=%q", level, zc.Encoding, c.File)
	return logger, nil
}

// SetLogger installs an already-built logger (tests use zaptest).
func SetLogger(l *zap.Logger, c config.LoggingConfig) {
	mu.Lock()
	defer mu.Unlock()
	root = l
	cfg = c
	children = make(map[Category]*zap.SugaredLogger)
}

// L returns the root logger for structured call sites.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := children[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := children[category]; ok {
		return l
	}

	var l *zap.SugaredLogger
	if cfg.IsCategoryEnabled(string(category)) {
		l = root.Named(string(category)).Sugar()
	} else {
		l = zap.NewNop().Sugar()
	}
	children[category] = l
	return l
}

// Sync flushes buffered entries. Errors from syncing stderr are ignored.
func Sync() {
	_ = L().Sync()
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Direct logging to categories
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Infof(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debugf(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warnf(format, args...) }

func Session(format string, args ...interface{})      { Get(CategorySession).Infof(format, args...) }
func SessionDebug(format string, args ...interface{}) { Get(CategorySession).Debugf(format, args...) }
func SessionWarn(format string, args ...interface{})  { Get(CategorySession).Warnf(format, args...) }

func API(format string, args ...interface{})      { Get(CategoryAPI).Infof(format, args...) }
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debugf(format, args...) }
func APIWarn(format string, args ...interface{})  { Get(CategoryAPI).Warnf(format, args...) }
func APIError(format string, args ...interface{}) { Get(CategoryAPI).Errorf(format, args...) }

func Sandbox(format string, args ...interface{})      { Get(CategorySandbox).Infof(format, args...) }
func SandboxDebug(format string, args ...interface{}) { Get(CategorySandbox).Debugf(format, args...) }
func SandboxWarn(format string, args ...interface{})  { Get(CategorySandbox).Warnf(format, args...) }
func SandboxError(format string, args ...interface{}) { Get(CategorySandbox).Errorf(format, args...) }

func Pipeline(format string, args ...interface{})      { Get(CategoryPipeline).Infof(format, args...) }
func PipelineDebug(format string, args ...interface{}) { Get(CategoryPipeline).Debugf(format, args...) }
func PipelineWarn(format string, args ...interface{})  { Get(CategoryPipeline).Warnf(format, args...) }

func Usage(format string, args ...interface{})     { Get(CategoryUsage).Infof(format, args...) }
func UsageWarn(format string, args ...interface{}) { Get(CategoryUsage).Warnf(format, args...) }

func Store(format string, args ...interface{})      { Get(CategoryStore).Infof(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debugf(format, args...) }

func Workbook(format string, args ...interface{})     { Get(CategoryWorkbook).Infof(format, args...) }
func WorkbookWarn(format string, args ...interface{}) { Get(CategoryWorkbook).Warnf(format, args...) }

func Server(format string, args ...interface{})     { Get(CategoryServer).Infof(format, args...) }
func ServerWarn(format string, args ...interface{}) { Get(CategoryServer).Warnf(format, args...) }

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debugf("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warnf("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debugf("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}

// Fatalf prints to stderr and exits; used only before a logger exists.
func Fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
