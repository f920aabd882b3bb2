// Package obslog provides category-scoped structured logging used
// throughout the pipeline, session, and store packages.
//
// It keeps the subsystem-category shape of the project's original
// hand-rolled logger but is backed by charmbracelet/log so that fields
// (error values, durations, ids) are carried as structured key/value
// pairs instead of being sprintf'd into the message.
package obslog

import (
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

// Category names a subsystem so log lines can be filtered/grepped by
// component without parsing the message text.
type Category string

const (
	CategoryAudio     Category = "audio"
	CategoryPipeline  Category = "pipeline"
	CategorySession   Category = "session"
	CategoryStore     Category = "store"
	CategorySTT       Category = "stt"
	CategoryRewrite   Category = "rewrite"
	CategoryJobQueue  Category = "jobqueue"
	CategoryService   Category = "service"
	CategoryUI        Category = "ui"
	CategorySystem    Category = "system"
)

var (
	mu   sync.Mutex
	base = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02T15:04:05Z07:00",
	})
	loggers = map[Category]*log.Logger{}
)

// SetLevel changes the global minimum log level (debug/info/warn/error).
func SetLevel(level log.Level) {
	mu.Lock()
	defer mu.Unlock()
	base.SetLevel(level)
}

// For returns (and memoizes) the category-scoped sub-logger.
func For(category Category) *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := base.With("component", string(category))
	loggers[category] = l
	return l
}

func Audio() *log.Logger    { return For(CategoryAudio) }
func Pipeline() *log.Logger { return For(CategoryPipeline) }
func Session() *log.Logger  { return For(CategorySession) }
func Store() *log.Logger    { return For(CategoryStore) }
func STT() *log.Logger      { return For(CategorySTT) }
func Rewrite() *log.Logger  { return For(CategoryRewrite) }
func JobQueue() *log.Logger { return For(CategoryJobQueue) }
func Service() *log.Logger  { return For(CategoryService) }
func UI() *log.Logger       { return For(CategoryUI) }
func System() *log.Logger   { return For(CategorySystem) }
