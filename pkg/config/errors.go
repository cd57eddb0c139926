// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigMissing matches every ConfigMissingError.
	ErrConfigMissing = errors.New("required configuration missing")

	// ErrConfigInvalid matches every ConfigInvalidError.
	ErrConfigInvalid = errors.New("invalid configuration")
)

// ConfigMissingError reports a required environment variable that is unset.
//
// It is always raised before any network activity, so callers can map it to
// a usage failure (exit code 1) rather than a runtime failure.
type ConfigMissingError struct {
	// Variable is the environment variable name, e.g. "DB_URL".
	Variable string
}

func (e *ConfigMissingError) Error() string {
	return fmt.Sprintf("required environment variable %s is not set", e.Variable)
}

func (e *ConfigMissingError) Is(target error) bool {
	return target == ErrConfigMissing
}

// ConfigInvalidError reports a setting that is present but unusable.
type ConfigInvalidError struct {
	Variable string
	Reason   string
	Wrapped  error
}

func (e *ConfigInvalidError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("invalid configuration %s: %s: %v", e.Variable, e.Reason, e.Wrapped)
	}
	return fmt.Sprintf("invalid configuration %s: %s", e.Variable, e.Reason)
}

func (e *ConfigInvalidError) Unwrap() error {
	return e.Wrapped
}

func (e *ConfigInvalidError) Is(target error) bool {
	return target == ErrConfigInvalid
}
