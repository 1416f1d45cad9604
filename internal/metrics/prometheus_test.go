package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPromCollectorExposesRecordedSeries(t *testing.T) {
	c := NewPromCollector()
	c.RecordCommand("getFileList", true, 5*time.Millisecond)
	c.RecordTransfer("download", 1024, 10*time.Millisecond)
	c.RecordConnection(true, "")
	c.RecordAuthentication(true, "alice")
	c.RecordLoggedInUsers(3)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"lanhub_commands_total",
		"lanhub_transfer_bytes_total",
		"lanhub_connections_total",
		"lanhub_authentications_total",
		"lanhub_logged_in_users 3",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}

func TestNopCollectorSatisfiesInterface(t *testing.T) {
	var c Collector = NopCollector{}
	c.RecordCommand("x", true, 0)
	c.RecordTransfer("upload", 0, 0)
	c.RecordConnection(false, "max_connections")
	c.RecordAuthentication(false, "bob")
	c.RecordLoggedInUsers(0)
}
