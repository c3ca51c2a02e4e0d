package logger

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Init configures the global logrus logger.
// level falls back to LOG_LEVEL, then "info". LOG_FORMAT=json switches to the JSON formatter
// so scheduler output can be shipped to a log collector as-is.
// It is safe to call multiple times; later calls overwrite previous settings.
func Init(level ...string) {
	log.SetOutput(os.Stdout)

	if strings.EqualFold(strings.TrimSpace(os.Getenv("LOG_FORMAT")), "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	levelStr := ""
	if len(level) > 0 {
		levelStr = strings.TrimSpace(level[0])
	}
	if levelStr == "" {
		levelStr = os.Getenv("LOG_LEVEL")
	}
	if levelStr == "" {
		levelStr = "info"
	}
	if lvl, err := log.ParseLevel(levelStr); err == nil {
		log.SetLevel(lvl)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// L returns the global logger for convenience.
func L() *log.Logger { return log.StandardLogger() }

// Post 返回带有帖子上下文字段的日志条目
func Post(runID, collection, postID string) *log.Entry {
	return log.WithFields(log.Fields{
		"run_id":     runID,
		"collection": collection,
		"post_id":    postID,
	})
}
