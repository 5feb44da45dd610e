// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package errors

import (
	"fmt"
	"strings"
)

// Error wraps an underlying cause with a stack of contextual messages
// accumulated as it propagates up through callers.
type Error struct {
	cause error
	stack []string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if len(e.stack) == 0 {
		return e.cause.Error()
	}
	return strings.Join(e.stack, " -> ") + ": " + e.cause.Error()
}

// Unwrap allows errors.Is / errors.As to see through to the cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Cause returns the innermost error that started the chain.
func Cause(err error) error {
	if e, ok := err.(*Error); ok {
		return e.cause
	}
	return err
}

// New creates a plain error carrying no stack context.
func New(msg string) error {
	return &Error{cause: fmt.Errorf("%s", msg)}
}

// Errorf creates a plain error formatted like fmt.Errorf.
func Errorf(format string, args ...interface{}) error {
	return &Error{cause: fmt.Errorf(format, args...)}
}

// Trace annotates err with a formatted message, preserving the original
// cause so Cause(err) still returns it after repeated wrapping.
func Trace(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	if e, ok := err.(*Error); ok {
		return &Error{cause: e.cause, stack: append([]string{msg}, e.stack...)}
	}
	return &Error{cause: err, stack: []string{msg}}
}
