package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"document-qa/internal/config"
)

func TestFileListFlag(t *testing.T) {
	var files fileList
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&files, "file", "")
	if err := fs.Parse([]string{"-file", "a.pdf", "-file", "b.pdf"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(files) != 2 || files.String() != "a.pdf,b.pdf" {
		t.Fatalf("unexpected files %v", files)
	}
}

func TestReadFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	if err := os.WriteFile(path, []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}
	files, err := readFiles([]string{path})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if files[0].Name != "report.pdf" || files[0].ContentType != "application/pdf" || string(files[0].Content) != "%PDF" {
		t.Fatalf("unexpected file %+v", files[0])
	}
	if _, err := readFiles([]string{filepath.Join(dir, "missing.pdf")}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRedacted(t *testing.T) {
	cfg := config.Default()
	cfg.ChatLLM.Key = "sk-secret"
	cfg.Database.DSN = "postgres://u:p@localhost/db"
	got := redacted(cfg)
	if got.ChatLLM.Key != "***" || got.Database.DSN != "***" {
		t.Fatalf("secrets not redacted: %+v", got)
	}
	if cfg.ChatLLM.Key != "sk-secret" {
		t.Fatal("redacted must not modify the loaded config")
	}
}
