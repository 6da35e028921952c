// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"fmt"
	"time"
)

type Options struct {
	// RunInterval overrides the configured cycle frequency when non-zero.
	// Tests use short intervals without touching the configuration.
	RunInterval time.Duration
}

func (v *Options) setDefaults() {}

func (v *Options) Check() error {
	if v.RunInterval < 0 {
		return fmt.Errorf("run interval cannot be negative")
	}
	return nil
}
