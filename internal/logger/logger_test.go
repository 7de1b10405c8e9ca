package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(zerolog.New(&buf), "conn").WithFields(map[string]interface{}{"endpoint": "ws://table:8080"})
	l.WithField("attempt", 2).Warnf("Reconnecting in %s", "1s")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("entry is not json: %s", buf.String())
	}
	if entry["component"] != "conn" || entry["endpoint"] != "ws://table:8080" || entry["attempt"] != 2.0 {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry["level"] != "warn" || entry["message"] != "Reconnecting in 1s" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestErrKeepsErrorField(t *testing.T) {
	var buf bytes.Buffer
	New(zerolog.New(&buf), "identity").Err(errors.New("disk full"), "save failed")
	if !strings.Contains(buf.String(), `"error":"disk full"`) {
		t.Fatalf("missing error field: %s", buf.String())
	}
}

func TestDiscardWritesNothing(t *testing.T) {
	Discard().Errorf("ignored %d", 1)
}

func TestInitLoggerFileOutput(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	})

	path := filepath.Join(t.TempDir(), "rayvtt.log")
	cfg := DefaultLogConfig()
	cfg.Level = "warn"
	cfg.LogToFile = true
	cfg.LogToJSON = true
	cfg.FilePath = path
	InitLogger(cfg)

	l := NewLogger("session")
	l.Info("filtered out")
	l.Warn("Connection lost")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "filtered out") {
		t.Fatalf("info must be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"component":"session"`) || !strings.Contains(out, "Connection lost") {
		t.Fatalf("unexpected log file: %s", out)
	}
}
