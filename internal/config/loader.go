// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"sigs.k8s.io/yaml"
)

// Load reads, validates, and applies default values to missing fields in
// the key source configuration file.
func Load(filename string) (*ConfigSpec, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	conf, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration in file '%s': %w", filename, err)
	}
	conf.Version = "static-file"
	return conf, nil
}

// Parse unmarshals, validates and applies default values to
// missing fields in the configuration.
func Parse(b []byte) (*ConfigSpec, error) {
	var conf Config
	if err := yaml.Unmarshal(b, &conf); err != nil {
		return nil, err
	}
	if err := checkUnknownFields(b, &conf); err != nil {
		return nil, fmt.Errorf("unknown fields: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	conf.Spec.ApplyDefaults()
	return &conf.Spec, nil
}

// checkUnknownFields reports the fields of the raw YAML that are not
// part of the Config schema.
func checkUnknownFields(b []byte, conf *Config) error {
	fields, err := unknownFields(b, conf)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	return errors.New(strings.Join(fields, ", "))
}

// unknownFields decodes the raw document twice, once as is and once after
// a round trip through typed, and returns the paths present only in the
// former, shallowest first. Fields of typed must not use omitempty.
func unknownFields[T any](raw []byte, typed *T) ([]string, error) {
	var given map[string]any
	if err := yaml.Unmarshal(raw, &given); err != nil {
		return nil, err
	}

	known, err := yaml.Marshal(typed)
	if err != nil {
		return nil, err
	}
	var schema map[string]any
	if err := yaml.Unmarshal(known, &schema); err != nil {
		return nil, err
	}

	fields := diffFields("", given, schema)
	slices.SortFunc(fields, func(a, b string) int {
		if d := fieldDepth(a) - fieldDepth(b); d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})
	return fields, nil
}

// diffFields walks given alongside schema. Values of mismatched kinds are
// left to the typed decoder.
func diffFields(path string, given, schema any) []string {
	var fields []string
	switch g := given.(type) {
	case map[string]any:
		s, ok := schema.(map[string]any)
		if !ok {
			return nil
		}
		for k, v := range g {
			keyPath := path + "." + k
			sv, found := s[k]
			if !found {
				fields = append(fields, keyPath)
				continue
			}
			fields = append(fields, diffFields(keyPath, v, sv)...)
		}
	case []any:
		s, ok := schema.([]any)
		if !ok {
			return nil
		}
		for i := range min(len(g), len(s)) {
			fields = append(fields, diffFields(fmt.Sprintf("%s[%d]", path, i), g[i], s[i])...)
		}
	}
	return fields
}

func fieldDepth(path string) int {
	return strings.Count(path, ".") + strings.Count(path, "[")
}
