// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fpmode defines the two-valued run mode shared by the aggregator,
// label generator and CLI entry points: training builds the fingerprint
// store, testing reads it.
package fpmode

import "errors"

type Mode int

const (
	Training Mode = iota
	Testing
)

func (m Mode) String() string {
	switch m {
	case Training:
		return "training"
	case Testing:
		return "testing"
	default:
		return "invalid"
	}
}

// ErrInvalidMode is the domain error returned when a component is asked to
// run in a mode outside {Training, Testing}.
var ErrInvalidMode = errors.New("fpmode: invalid mode")

// Parse maps a CLI-facing string onto a Mode.
func Parse(s string) (Mode, error) {
	switch s {
	case "training":
		return Training, nil
	case "testing":
		return Testing, nil
	default:
		return 0, ErrInvalidMode
	}
}
