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

// Package errors defines the typed failures the TAO core surfaces.
package errors

import "errors"

var (
	ErrUnauthorized            = errors.New("unauthorized")
	ErrNotFound                = errors.New("not found")
	ErrConflict                = errors.New("conflict")
	ErrShardUnavailable        = errors.New("shard unavailable")
	ErrClockRegressionExceeded = errors.New("clock regression exceeded")
	ErrCorruptedWal            = errors.New("corrupted wal")
	ErrInvalidArgument         = errors.New("invalid argument")

	ErrInvalidShardId = errors.New("invalid shard id")
)

// Is reports whether err matches target, deferring to the standard
// library's chain-unwrapping match.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
