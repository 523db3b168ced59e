package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mpataki/boda/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "boda.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestLog(t *testing.T, s *Storage, id string) *SessionLog {
	t.Helper()
	sess := &models.Session{
		ID:          id,
		StartedAt:   time.Now(),
		Command:     []string{"echo", "ok"},
		Interval:    time.Second,
		Concurrency: 1,
		Shell:       "/bin/sh",
	}
	if err := s.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return s.Session(id)
}

func TestCreateThenComplete(t *testing.T) {
	ctx := context.Background()
	log := newTestLog(t, newTestStorage(t), "s1")

	start := time.Now()
	id, err := log.Create(ctx, start)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	exec, err := log.Get(ctx, models.Specific(id))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if exec == nil || !exec.Pending() {
		t.Fatalf("expected pending record, got %+v", exec)
	}
	if exec.Stdout != nil || exec.Stderr != nil || exec.ExitCode != nil {
		t.Fatalf("pending record has output fields: %+v", exec)
	}

	latest, err := log.Get(ctx, models.Latest())
	if err != nil {
		t.Fatalf("Get latest: %v", err)
	}
	if latest != nil {
		t.Fatalf("Latest must not surface a pending record, got %+v", latest)
	}

	end := start.Add(250 * time.Millisecond)
	err = log.Complete(ctx, Completion{ID: id, Start: start, End: end, Stdout: "ok\n", Stderr: "warn", ExitCode: 3})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	for i := 0; i < 2; i++ {
		exec, err = log.Get(ctx, models.Specific(id))
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if exec.Pending() {
			t.Fatal("record still pending after Complete")
		}
		if *exec.Stdout != "ok\n" || *exec.Stderr != "warn" || *exec.ExitCode != 3 {
			t.Fatalf("unexpected fields: stdout=%q stderr=%q exit=%d", *exec.Stdout, *exec.Stderr, *exec.ExitCode)
		}
		if !exec.CompletedAt.Equal(end) {
			t.Fatalf("CompletedAt = %v, want %v", exec.CompletedAt, end)
		}
	}

	latest, err = log.Get(ctx, models.Latest())
	if err != nil {
		t.Fatalf("Get latest: %v", err)
	}
	if latest == nil || latest.ID != id {
		t.Fatalf("Latest = %+v, want id %d", latest, id)
	}
}

func TestCompleteIsOnce(t *testing.T) {
	ctx := context.Background()
	log := newTestLog(t, newTestStorage(t), "s1")

	start := time.Now()
	id, err := log.Create(ctx, start)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := log.Complete(ctx, Completion{ID: id, End: start, Stdout: "first"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	err = log.Complete(ctx, Completion{ID: id, End: start, Stdout: "second"})
	if !errors.Is(err, ErrNoPendingRecord) {
		t.Fatalf("second Complete err = %v, want ErrNoPendingRecord", err)
	}

	exec, _ := log.Get(ctx, models.Specific(id))
	if *exec.Stdout != "first" {
		t.Fatalf("completed record changed: %q", *exec.Stdout)
	}
}

func TestCompleteByStart(t *testing.T) {
	ctx := context.Background()
	log := newTestLog(t, newTestStorage(t), "s1")

	t0 := time.Now()
	t1 := t0.Add(100 * time.Millisecond)
	id0, _ := log.Create(ctx, t0)
	id1, _ := log.Create(ctx, t1)

	if err := log.Complete(ctx, Completion{Start: t1, End: t1, Stdout: "one"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	e0, _ := log.Get(ctx, models.Specific(id0))
	e1, _ := log.Get(ctx, models.Specific(id1))
	if !e0.Pending() {
		t.Fatal("wrong record completed")
	}
	if e1.Pending() || *e1.Stdout != "one" {
		t.Fatalf("record %d not completed: %+v", id1, e1)
	}
}

func TestCompleteUnknown(t *testing.T) {
	log := newTestLog(t, newTestStorage(t), "s1")
	err := log.Complete(context.Background(), Completion{Start: time.Now(), End: time.Now()})
	if !errors.Is(err, ErrNoPendingRecord) {
		t.Fatalf("err = %v, want ErrNoPendingRecord", err)
	}
}

func TestHistoryOrderAndScope(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	a := newTestLog(t, s, "a")
	b := newTestLog(t, s, "b")

	base := time.Now()
	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := a.Create(ctx, base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, id)
		if _, err := b.Create(ctx, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Create in b: %v", err)
		}
	}
	if err := a.Complete(ctx, Completion{ID: ids[1], End: base, ExitCode: 1}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	history, err := a.History(ctx, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("expected 5 summaries, got %d", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i-1].ID <= history[i].ID {
			t.Fatalf("history not descending at %d: %d then %d", i, history[i-1].ID, history[i].ID)
		}
	}
	if history[0].ID != ids[len(ids)-1] {
		t.Fatalf("history head = %d, want newest %d", history[0].ID, ids[len(ids)-1])
	}
	if history[3].ExitCode == nil || *history[3].ExitCode != 1 {
		t.Fatalf("summary of completed record lost exit code: %+v", history[3])
	}

	limited, err := a.History(ctx, 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(limited))
	}
}

func TestBoundsAndNeighbor(t *testing.T) {
	ctx := context.Background()
	log := newTestLog(t, newTestStorage(t), "s1")

	if _, _, ok, err := log.Bounds(ctx); err != nil || ok {
		t.Fatalf("Bounds on empty log: ok=%v err=%v", ok, err)
	}

	base := time.Now()
	var ids []int64
	for i := 0; i < 3; i++ {
		id, _ := log.Create(ctx, base.Add(time.Duration(i)*time.Millisecond))
		ids = append(ids, id)
	}

	lo, hi, ok, err := log.Bounds(ctx)
	if err != nil || !ok {
		t.Fatalf("Bounds: ok=%v err=%v", ok, err)
	}
	if lo != ids[0] || hi != ids[2] {
		t.Fatalf("Bounds = (%d, %d), want (%d, %d)", lo, hi, ids[0], ids[2])
	}

	if n, ok, _ := log.Neighbor(ctx, ids[1], true); !ok || n != ids[0] {
		t.Fatalf("older neighbor of %d = %d (%v)", ids[1], n, ok)
	}
	if n, ok, _ := log.Neighbor(ctx, ids[1], false); !ok || n != ids[2] {
		t.Fatalf("newer neighbor of %d = %d (%v)", ids[1], n, ok)
	}
	if _, ok, _ := log.Neighbor(ctx, ids[0], true); ok {
		t.Fatal("oldest record has an older neighbor")
	}
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	if sess, err := s.LatestSession(ctx); err != nil || sess != nil {
		t.Fatalf("LatestSession on empty db = %+v, %v", sess, err)
	}

	newTestLog(t, s, "first")
	time.Sleep(time.Millisecond)
	newTestLog(t, s, "second")

	latest, err := s.LatestSession(ctx)
	if err != nil {
		t.Fatalf("LatestSession: %v", err)
	}
	if latest.ID != "second" {
		t.Fatalf("LatestSession = %q, want second", latest.ID)
	}
	if len(latest.Command) != 2 || latest.Command[0] != "echo" {
		t.Fatalf("command not round-tripped: %v", latest.Command)
	}

	sessions, err := s.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "second" {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
}

func TestClosedStoreReportsPersistenceError(t *testing.T) {
	s := newTestStorage(t)
	log := newTestLog(t, s, "s1")
	s.Close()

	_, err := log.Create(context.Background(), time.Now())
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
}

func TestNewConfiguresConnection(t *testing.T) {
	s := newTestStorage(t)

	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	var timeout int64
	if err := s.db.QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatalf("busy_timeout: %v", err)
	}
	if timeout != defaultBusyTimeout.Milliseconds() {
		t.Errorf("busy_timeout = %d, want %d", timeout, defaultBusyTimeout.Milliseconds())
	}
}

func TestNewFailsOnUnopenableDatabase(t *testing.T) {
	if _, err := New(t.TempDir()); err == nil {
		t.Fatal("New on a directory succeeded")
	}
}
