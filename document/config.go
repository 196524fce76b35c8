// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package document

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads from YAML in the string form
// time.ParseDuration accepts ("300ms", "1s") or as integer nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var text string
	if err := value.Decode(&text); err == nil {
		parsed, err := time.ParseDuration(text)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", text, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var nanos int64
	if err := value.Decode(&nanos); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(nanos)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config tunes the timing and capacities of document sessions.
//
// The zero value is not usable directly; obtain a baseline from
// DefaultConfig or LoadConfig and adjust fields as needed.
type Config struct {
	// CompileBatch is the window during which consecutive compile
	// requests are coalesced into one compile pass.
	CompileBatch Duration `yaml:"compile_batch" validate:"gte=0"`

	// WriteDebounce is how long a write request waits for further
	// changes before the file is actually written. Requests with Now
	// set skip the debounce.
	WriteDebounce Duration `yaml:"write_debounce" validate:"gte=0"`

	// WatcherMute is the window after a self-write during which file
	// watcher events for the document path are ignored.
	WatcherMute Duration `yaml:"watcher_mute" validate:"gte=0"`

	// ExecuteCapacity is the buffer size of the execute request channel.
	ExecuteCapacity int `yaml:"execute_capacity" validate:"gte=1"`

	// ResponseCapacity is the buffer size of each response subscription.
	// A subscriber that falls this far behind loses responses.
	ResponseCapacity int `yaml:"response_capacity" validate:"gte=1"`

	// MaxConcurrency caps concurrent steps within one plan stage.
	// Zero means the number of CPUs.
	MaxConcurrency int `yaml:"max_concurrency" validate:"gte=0"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		CompileBatch:     Duration(300 * time.Millisecond),
		WriteDebounce:    Duration(time.Second),
		WatcherMute:      Duration(300 * time.Millisecond),
		ExecuteCapacity:  16,
		ResponseCapacity: 64,
	}
}

// LoadConfig reads a YAML config file over the defaults and validates
// the result. Fields absent from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("document: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("document: parse config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// Validate checks the configuration's field constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("document: invalid config: %w", err)
	}
	return nil
}
