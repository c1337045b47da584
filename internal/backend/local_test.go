package backend

import (
	"bytes"
	"context"
	"os"
	"testing"
)

func TestLocalStoreRetrieveDelete(t *testing.T) {
	root := t.TempDir()
	l, err := NewLocal(root)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	ctx := context.Background()

	if err := l.Store(ctx, "photo.ab12cd.jpg", bytes.NewReader([]byte("hello")), "image/jpeg"); err != nil {
		t.Fatalf("Store: %v", err)
	}

	data, err := l.Retrieve(ctx, "photo.ab12cd.jpg")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("expected %q, got %q", "hello", data)
	}

	if err := l.Delete(ctx, "photo.ab12cd.jpg"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := l.Retrieve(ctx, "photo.ab12cd.jpg"); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist after delete, got %v", err)
	}
}

func TestLocalDeleteMissingIsNotAnError(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	if err := l.Delete(context.Background(), "never-existed.bin"); err != nil {
		t.Fatalf("expected deleting a missing key to succeed, got %v", err)
	}
}

func TestLocalRejectsPathTraversal(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	if err := l.Store(context.Background(), "../../etc/passwd", bytes.NewReader(nil), ""); err == nil {
		t.Fatal("expected an error for a traversal attempt")
	}
	if _, err := l.Retrieve(context.Background(), "../outside.txt"); err == nil {
		t.Fatal("expected an error for a traversal attempt")
	}
}

func TestLocalNestedKeyCreatesDirectories(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	if err := l.Store(context.Background(), "nested/path/name.uid.ext", bytes.NewReader([]byte("x")), ""); err != nil {
		t.Fatalf("Store into nested path: %v", err)
	}
	data, err := l.Retrieve(context.Background(), "nested/path/name.uid.ext")
	if err != nil || string(data) != "x" {
		t.Fatalf("Retrieve nested path: data=%q err=%v", data, err)
	}
}
