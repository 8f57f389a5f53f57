// Copyright 2026 The PIME Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestLoadDescriptorsAndBindings(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "backends.yaml"), `
- name: chewing
  command: pime-chewing
  workingDir: .
  params: ""
- name: unbound-backend
  command: pime-unbound
  workingDir: .
  params: ""
`)
	writeFile(t, filepath.Join(dir, "chewing", "input_methods", "bopomofo", "ime.yaml"), `
guid: "{4C207EF4-2CC9-4EE6-B876-F2CD0F29D1FD}"
`)
	writeFile(t, filepath.Join(dir, "chewing", "input_methods", "pinyin", "ime.yaml"), `
guid: "{ANOTHER-GUID}"
`)

	cat, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	descriptors := cat.Descriptors()
	if len(descriptors) != 2 {
		t.Fatalf("got %d descriptors, want 2", len(descriptors))
	}
	if descriptors[0].Name != "chewing" || descriptors[0].Command != "pime-chewing" {
		t.Fatalf("got %+v", descriptors[0])
	}

	bindings := cat.ProfileBindings()
	if bindings["{4c207ef4-2cc9-4ee6-b876-f2cd0f29d1fd}"] != "chewing" {
		t.Fatalf("missing or wrong binding: %+v", bindings)
	}
	if bindings["{another-guid}"] != "chewing" {
		t.Fatalf("missing or wrong binding: %+v", bindings)
	}
	if len(bindings) != 2 {
		t.Fatalf("got %d bindings, want 2: %+v", len(bindings), bindings)
	}
}

func TestLoadMissingBackendsFileIsError(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); err == nil {
		t.Fatal("Load with no backends.yaml should fail")
	}
}

func TestLoadBackendWithNoInputMethodsDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "backends.yaml"), `
- name: solo
  command: pime-solo
  workingDir: .
  params: ""
`)
	cat, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cat.ProfileBindings()) != 0 {
		t.Fatalf("expected no bindings, got %+v", cat.ProfileBindings())
	}
}
