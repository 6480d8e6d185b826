// Zaparoo Tap
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Tap.
//
// Zaparoo Tap is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Tap is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Tap.  If not, see <http://www.gnu.org/licenses/>.

// Package validation validates bridge API requests using go-playground/validator
// with custom validators for card data.
package validation

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/ZaparooProject/zaparoo-tap/pkg/readers/shared/ndef"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"
)

var (
	ErrMissingParams = errors.New("missing params")
	ErrInvalidParams = errors.New("invalid params")
)

// Validator handles validation of API parameters.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new Validator with registered custom validators.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(fieldName)

	_ = v.RegisterValidation("duration", validateDuration)
	_ = v.RegisterValidation("mindur", validateMinDuration)
	_ = v.RegisterValidation("maxdur", validateMaxDuration)
	_ = v.RegisterValidation("hexdata", validateHexData)
	_ = v.RegisterValidation("language", validateLanguage)

	return &Validator{validate: v}
}

// RegisterValidation adds a custom tag on top of the shared ones.
func (v *Validator) RegisterValidation(tag string, fn validator.Func) error {
	if err := v.validate.RegisterValidation(tag, fn); err != nil {
		return fmt.Errorf("failed to register %s validation: %w", tag, err)
	}
	return nil
}

// fieldName reports fields by their wire name so messages match what the
// caller wrote, JSON for requests and TOML for the config file.
func fieldName(f reflect.StructField) string {
	for _, key := range []string{"json", "toml"} {
		name, _, _ := strings.Cut(f.Tag.Get(key), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return ""
}

// DefaultValidator is a shared validator instance for API use.
var DefaultValidator = NewValidator()

// Validate validates a struct and returns a formatted error if validation fails.
func (v *Validator) Validate(params any) error {
	if err := v.validate.Struct(params); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewError(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateAndUnmarshal unmarshals JSON params and validates them.
// Returns ErrMissingParams if params is empty, ErrInvalidParams if unmarshal
// fails, or an *Error if validation fails.
func ValidateAndUnmarshal[T any](params json.RawMessage, dest *T) error {
	if len(params) == 0 {
		return ErrMissingParams
	}
	if err := json.Unmarshal(params, dest); err != nil {
		return ErrInvalidParams
	}
	return DefaultValidator.Validate(dest)
}

// ParseTimeout parses an optional duration, returning fallback when empty.
func ParseTimeout(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	return d, nil
}

// validateDuration checks if string is a valid Go duration.
func validateDuration(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	_, err := time.ParseDuration(val)
	return err == nil
}

// validateMinDuration checks a duration string is at least the duration
// given as the tag's param, e.g. "mindur=50ms".
func validateMinDuration(fl validator.FieldLevel) bool {
	d, bound, ok := durationAndParam(fl)
	return ok && d >= bound
}

// validateMaxDuration checks a duration string is at most the tag's param.
func validateMaxDuration(fl validator.FieldLevel) bool {
	d, bound, ok := durationAndParam(fl)
	return ok && d <= bound
}

func durationAndParam(fl validator.FieldLevel) (d, bound time.Duration, ok bool) {
	d, err := time.ParseDuration(fl.Field().String())
	if err != nil {
		return 0, 0, false
	}
	bound, err = time.ParseDuration(fl.Param())
	if err != nil {
		return 0, 0, false
	}
	return d, bound, true
}

// validateHexData checks if string is valid hex data, allowing spaces
// between bytes: "04A1B2C3", "04 A1 B2 C3" and "04 a1 b2 c3" all pass.
func validateHexData(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	normalized := strings.ReplaceAll(val, " ", "")
	if normalized == "" {
		return false
	}
	_, err := hex.DecodeString(normalized)
	return err == nil
}

// validateLanguage checks for a BCP 47 tag short enough for a text record.
func validateLanguage(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	if len(val) > ndef.MaxLanguageLen {
		return false
	}
	_, err := language.Parse(val)
	return err == nil
}
