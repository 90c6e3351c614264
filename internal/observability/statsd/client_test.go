package statsd

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestSanitizePrefix(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"  metrics.app  ": "metrics.app",
		"..foo..":         "foo",
		".":               "",
		"":                "",
	}

	for input, want := range tests {
		if got := sanitizePrefix(input); got != want {
			t.Fatalf("sanitizePrefix(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizeMetricName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" job/transition ": "job_transition",
		"queue..depth":     "queue.depth",
		"bad:name|x":       "bad_name_x",
		"...":              "",
	}

	for input, want := range tests {
		if got := normalizeMetricName(input); got != want {
			t.Fatalf("normalizeMetricName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestFormatTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{
		"env": "prod",
		//nolint:gocritic // whitespace is part of the test case
		" service ": " jobqueue ",
	}
	local := map[string]string{
		"state": " completed ",
		"":      "ignored",
		"env":   "stage",
	}

	got := formatTags(global, local)
	want := "|#env:stage,service:jobqueue,state:completed"

	if got != want {
		t.Fatalf("formatTags mismatch\n got: %q\nwant: %q", got, want)
	}
	if got := formatTags(nil, nil); got != "" {
		t.Fatalf("formatTags(nil, nil) = %q, want empty string", got)
	}
}

func TestClientLine(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{GlobalTags: map[string]string{"env": "test"}})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}

	got := client.line("job.transition", "1", "c", map[string]string{"job_type": "webhook"})
	want := "jobqueue.job.transition:1|c|#env:test,job_type:webhook"
	if got != want {
		t.Fatalf("line mismatch\n got: %q\nwant: %q", got, want)
	}
	if got := client.line(" ", "1", "c", nil); got != "" {
		t.Fatalf("expected empty line for blank name, got %q", got)
	}
}

func TestClientEmitsOverUDP(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp listener unavailable: %v", err)
	}
	defer pc.Close()

	client, err := NewClient(Config{Enabled: true, Address: pc.LocalAddr().String(), Prefix: "svc"})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	defer client.Close()

	if !client.Enabled() {
		t.Fatal("expected client to be enabled")
	}

	client.Timing("job.duration", 1500*time.Microsecond, map[string]string{"state": "completed"})

	buf := make([]byte, 512)
	if err := pc.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read packet: %v", err)
	}
	if got, want := string(buf[:n]), "svc.job.duration:1.5|ms|#state:completed"; got != want {
		t.Fatalf("packet mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestClientClose(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	client := &Client{prefix: DefaultPrefix, conn: clientConn}
	if err := client.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if client.Enabled() {
		t.Fatal("expected client.Enabled to report false after Close")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close (second call) error: %v", err)
	}
	// Dropped after close.
	client.Count("job.transition", 1, nil)

	var nilClient *Client
	if nilClient.Enabled() {
		t.Fatal("nil client should report disabled")
	}
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil client Close error: %v", err)
	}
	nilClient.Gauge("queue.depth", 1, nil)
}

func TestNewSink(t *testing.T) {
	t.Parallel()

	sink, closeFn, err := NewSink(Config{Enabled: false, Address: "127.0.0.1:8125"})
	if err != nil {
		t.Fatalf("NewSink error: %v", err)
	}
	if _, ok := sink.(Nop); !ok {
		t.Fatalf("expected Nop sink when disabled, got %T", sink)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close error: %v", err)
	}

	_, _, err = NewSink(Config{Enabled: true, Address: "bad address"})
	if err == nil {
		t.Fatal("expected NewSink to error for invalid address")
	}
	if !strings.Contains(err.Error(), "statsd dial") {
		t.Fatalf("unexpected error: %v", err)
	}
}
