package replock

import (
	"os"
	"testing"

	"github.com/oxenhq/oxen-core/internal/oxerr"
)

func TestTryLock_SecondAcquireFailsWhileHeld(t *testing.T) {
	dir := t.TempDir()

	l1, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := l1.TryLock(); err != nil {
		t.Fatalf("first TryLock: %v", err)
	}
	defer l1.Unlock()

	l2, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	err = l2.TryLock()
	if err == nil {
		t.Fatal("expected second TryLock to fail while first holds the lock")
	}
	if !oxerr.Is(err, oxerr.KindLocked) {
		t.Fatalf("expected KindLocked, got %v", err)
	}
}

func TestTryLock_SucceedsAfterUnlock(t *testing.T) {
	dir := t.TempDir()

	l1, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := l1.TryLock(); err != nil {
		t.Fatal(err)
	}
	if err := l1.Unlock(); err != nil {
		t.Fatal(err)
	}

	l2, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := l2.TryLock(); err != nil {
		t.Fatalf("expected TryLock to succeed after unlock, got %v", err)
	}
	l2.Unlock()
}

func TestWithLock_RunsFnAndReleases(t *testing.T) {
	dir := t.TempDir()
	var ran bool

	if err := WithLock(dir, func() error {
		ran = true
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("expected fn to run")
	}

	if _, err := os.Stat(dir); err != nil {
		t.Fatal(err)
	}

	l, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.TryLock(); err != nil {
		t.Fatalf("expected lock released after WithLock returns, got %v", err)
	}
	l.Unlock()
}
