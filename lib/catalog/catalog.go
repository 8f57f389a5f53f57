// Copyright 2026 The PIME Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog loads the set of backend descriptors and their
// input-method-profile bindings from an install directory, the way
// pime-launcher discovers which backends it supervises and which
// profile identifiers route to which backend.
//
// The directory layout is:
//
//	<installDir>/backends.yaml
//	<installDir>/<backend-name>/input_methods/<profile>/ime.yaml
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Descriptor describes one backend worker process: how to launch it
// and where.
type Descriptor struct {
	Name       string `yaml:"name"`
	Command    string `yaml:"command"`
	WorkingDir string `yaml:"workingDir"`
	Params     string `yaml:"params"`
}

// Catalog is the immutable result of loading an install directory: the
// backend descriptors and the profile-id-to-backend-name bindings
// collected from their input_methods subdirectories.
type Catalog struct {
	descriptors []Descriptor
	bindings    map[string]string // lowercased profile id -> backend name
}

// imeProfile is the shape of an ime.yaml file. Only the guid field is
// meaningful here; any other fields present are ignored.
type imeProfile struct {
	GUID string `yaml:"guid"`
}

// Load reads backends.yaml from installDir, then for each backend it
// describes, walks <installDir>/<backend>/input_methods/*/ime.yaml to
// collect that backend's profile bindings. A missing backends.yaml is
// an error: a launcher with no backend descriptors has nothing to
// supervise.
func Load(installDir string) (*Catalog, error) {
	descriptors, err := loadDescriptors(filepath.Join(installDir, "backends.yaml"))
	if err != nil {
		return nil, err
	}

	bindings := make(map[string]string)
	for _, d := range descriptors {
		if err := loadInputMethods(installDir, d.Name, bindings); err != nil {
			return nil, fmt.Errorf("catalog: loading input methods for backend %q: %w", d.Name, err)
		}
	}

	return &Catalog{descriptors: descriptors, bindings: bindings}, nil
}

func loadDescriptors(path string) ([]Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %s: %w", path, err)
	}
	var descriptors []Descriptor
	if err := yaml.Unmarshal(data, &descriptors); err != nil {
		return nil, fmt.Errorf("catalog: parsing %s: %w", path, err)
	}
	return descriptors, nil
}

// loadInputMethods scans <installDir>/<backendName>/input_methods for
// subdirectories each containing an ime.yaml, and records
// guid -> backendName in bindings. A backend with no input_methods
// directory is not an error: it may be reachable only by explicit name.
func loadInputMethods(installDir, backendName string, bindings map[string]string) error {
	dir := filepath.Join(installDir, backendName, "input_methods")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		imePath := filepath.Join(dir, entry.Name(), "ime.yaml")
		data, err := os.ReadFile(imePath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", imePath, err)
		}
		var profile imeProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return fmt.Errorf("parsing %s: %w", imePath, err)
		}
		if profile.GUID == "" {
			continue
		}
		bindings[strings.ToLower(profile.GUID)] = backendName
	}
	return nil
}

// Descriptors returns every backend descriptor loaded from
// backends.yaml, in file order.
func (c *Catalog) Descriptors() []Descriptor {
	return c.descriptors
}

// ProfileBindings returns the profile-id (lowercased) to backend-name
// map collected from every backend's input_methods directory.
func (c *Catalog) ProfileBindings() map[string]string {
	return c.bindings
}
