package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) Ping(_ context.Context) error { return m.err }

type mockIndexChecker struct {
	existing map[string]bool
	err      error
}

func (m *mockIndexChecker) IndexExists(_ context.Context, name string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.existing[name], nil
}

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockDBPinger{}, &mockIndexChecker{existing: map[string]bool{"post": true}}, "post")
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks["database"] != CheckOK {
		t.Errorf("expected database %q, got %q", CheckOK, r.Checks["database"])
	}
	if r.Checks["index:post"] != CheckOK {
		t.Errorf("expected index:post %q, got %q", CheckOK, r.Checks["index:post"])
	}
}

func TestCheck_DBError(t *testing.T) {
	svc := New(&mockDBPinger{err: errors.New("conn refused")}, &mockIndexChecker{existing: map[string]bool{"post": true}}, "post")
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["database"] != CheckError {
		t.Errorf("expected database %q, got %q", CheckError, r.Checks["database"])
	}
}

func TestCheck_MissingIndex(t *testing.T) {
	svc := New(&mockDBPinger{}, &mockIndexChecker{existing: map[string]bool{"post": true}}, "post", "comment")
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["index:post"] != CheckOK {
		t.Errorf("expected index:post %q, got %q", CheckOK, r.Checks["index:post"])
	}
	if r.Checks["index:comment"] != CheckError {
		t.Errorf("expected index:comment %q, got %q", CheckError, r.Checks["index:comment"])
	}
}

func TestCheck_IndexProbeError(t *testing.T) {
	svc := New(&mockDBPinger{}, &mockIndexChecker{err: errors.New("timeout")}, "post")
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["index:post"] != CheckError {
		t.Error("expected index error")
	}
}

func TestCheck_NoIndexChecker(t *testing.T) {
	svc := New(&mockDBPinger{}, nil, "post")
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if len(r.Checks) != 1 {
		t.Errorf("expected only the database check, got %v", r.Checks)
	}
}
