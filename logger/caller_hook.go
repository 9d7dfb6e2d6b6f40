package logger

import (
	"reflect"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// loggerPackage is the import path of this package.
var loggerPackage = reflect.TypeOf(Log{}).PkgPath()

// callerHook rewrites entry.Caller to the first frame that belongs to
// neither logrus nor the wrappers in this package. Without it every line
// would point at logger.go.
type callerHook struct {
	skip []string
}

func newCallerHook() *callerHook {
	return &callerHook{skip: []string{"github.com/sirupsen/logrus.", loggerPackage + "."}}
}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !h.internal(frame.Function) {
			entry.Caller = &frame
			return nil
		}
		if !more {
			return nil
		}
	}
}

func (h *callerHook) internal(function string) bool {
	for _, prefix := range h.skip {
		if strings.HasPrefix(function, prefix) {
			return true
		}
	}
	return false
}
