package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	logx "trackcast/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("driver %q: st=%v err=%v", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestFileAuditAppendAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "trackcast")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		e := AuditEntry{Actor: "console", Source: "console", Action: "track.add", Target: fmt.Sprintf("p%d", i), OK: true}
		if err := st.AppendAudit(ctx, e); err != nil {
			t.Fatalf("AppendAudit: %v", err)
		}
	}

	got, err := st.RecentAudit(ctx, 3)
	if err != nil {
		t.Fatalf("RecentAudit: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len=%d want 3", len(got))
	}
	for i, want := range []string{"p2", "p3", "p4"} {
		if got[i].Target != want {
			t.Fatalf("got[%d]=%q want %q", i, got[i].Target, want)
		}
		if got[i].At.IsZero() {
			t.Fatalf("timestamp not set")
		}
	}
}

func TestFileAuditClosed(t *testing.T) {
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "x")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.AppendAudit(context.Background(), AuditEntry{Action: "x"}); err == nil {
		t.Fatalf("expected error after close")
	}
}
