// Package glogger adapts github.com/golang/glog to logging.Logger for the
// host binaries.
package glogger

import (
	"fmt"
	"strings"

	"github.com/golang/glog"

	"github.com/bigbag/spiprobe/internal/logging"
)

// Logger writes Debug at verbosity 1 and Info/Error at their glog severities.
type Logger struct {
	// Prefix is prepended to every message, e.g. "flash".
	Prefix string
}

var _ logging.Logger = Logger{}

// New returns a Logger with the given prefix.
func New(prefix string) Logger { return Logger{Prefix: prefix} }

func (l Logger) Debug(msg string, kv ...interface{}) {
	if glog.V(1) {
		glog.InfoDepth(1, l.format(msg, kv))
	}
}

func (l Logger) Info(msg string, kv ...interface{}) {
	glog.InfoDepth(1, l.format(msg, kv))
}

func (l Logger) Error(msg string, kv ...interface{}) {
	glog.ErrorDepth(1, l.format(msg, kv))
}

func (l Logger) format(msg string, kv []interface{}) string {
	var b strings.Builder
	if l.Prefix != "" {
		b.WriteString(l.Prefix)
		b.WriteByte(' ')
	}
	b.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if i+1 < len(kv) {
			fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
		} else {
			fmt.Fprintf(&b, " %v", kv[i])
		}
	}
	return b.String()
}
