package logger_test

import (
	"bytes"
	"runtime"
	"strings"
	"testing"

	"econwatch/logger"

	"github.com/sirupsen/logrus"
)

func TestCallerHookReportsCallSite(t *testing.T) {
	t.Setenv("LOG_LEVEL", "info")
	var buf bytes.Buffer
	log := logger.Logger()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{
		CallerPrettyfier: func(f *runtime.Frame) (string, string) { return f.Function, "" },
	})

	log.WithComponent("archiver").WithSource("food_prices").Info("snapshot written")

	out := buf.String()
	if !strings.Contains(out, "logger_test.TestCallerHookReportsCallSite") {
		t.Fatalf("caller should be the test function, got %s", out)
	}
	if strings.Contains(out, "sirupsen/logrus") {
		t.Fatalf("caller points into logrus: %s", out)
	}
}
