package observability

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLogger_TestEnvDropsInfo(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "test")
	l.Info().Msg("quiet")
	l.Error().Msg("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, "loud") {
		t.Fatalf("error line missing: %s", out)
	}
}

func TestNewLogger_ProdIsJSON(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "prod")
	l.Info().Str("k", "v").Msg("hello")
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("expected JSON line, got %q", buf.String())
	}
}
