package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStorageReadWrite(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	if err := s.Write(ctx, "tasks/active/abc.yaml", []byte("id: abc")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	data, err := s.Read(ctx, "tasks/active/abc.yaml")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "id: abc" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestLocalStorageReadNotFound(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	_, err = s.Read(context.Background(), "missing.yaml")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalStorageDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	if err := s.Write(ctx, "a.yaml", []byte("x")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := s.Delete(ctx, "a.yaml"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := s.Delete(ctx, "a.yaml"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestLocalStorageList(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	paths, err := s.List(ctx, "tasks/active")
	if err != nil {
		t.Fatalf("list of missing prefix failed: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("expected empty list, got %v", paths)
	}

	for _, name := range []string{"a.yaml", "b.yaml"} {
		if err := s.Write(ctx, "tasks/active/"+name, []byte("x")); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	paths, err = s.List(ctx, "tasks/active")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("expected 2 paths, got %v", paths)
	}
}

func TestLocalStorageAtomicWriteLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewLocalStorage(dir)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	if err := s.Write(ctx, "a.yaml", []byte("x")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir failed: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}
