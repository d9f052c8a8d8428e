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

// Package inverse implements the inverse-type registry: a static,
// in-memory table telling the TAO core whether an association write
// must also produce a compensating write on the other endpoint's
// shard, and if so under which type.
package inverse

import taoerrors "github.com/taodb/tao/errors"

// Policy is the registered behavior for one association type.
type Policy int

const (
	// None means the edge has no inverse; a write touches only
	// shard(id1).
	None Policy = iota
	// Self means the edge is its own inverse (symmetric), recorded on
	// shard(id2) under the same type.
	Self
	// Inverse means the edge has a distinct inverse type, recorded on
	// shard(id2) under that type.
	Inverse
)

// Registry is the static type -> inverse mapping. It is built once at
// startup from configuration and never mutated afterward; there is no
// discovery or auto-registration.
type Registry struct {
	policies map[string]Policy
	inverses map[string]string
}

// Entry configures one association type's inverse policy.
type Entry struct {
	Type string `json:"type"`

	// Policy is None, Self, or Inverse, written in JSON as its integer
	// value (0, 1, or 2); Inverse additionally requires InverseType.
	Policy      Policy `json:"policy"`
	InverseType string `json:"inverse_type,omitempty"`
}

// New builds a Registry from entries, validating that every Inverse
// entry names a concrete InverseType.
func New(entries []Entry) (*Registry, error) {
	r := &Registry{
		policies: make(map[string]Policy, len(entries)),
		inverses: make(map[string]string, len(entries)),
	}
	for _, e := range entries {
		if e.Policy == Inverse && e.InverseType == "" {
			return nil, taoerrors.ErrInvalidArgument
		}
		r.policies[e.Type] = e.Policy
		if e.Policy == Inverse {
			r.inverses[e.Type] = e.InverseType
		}
	}
	return r, nil
}

// Lookup returns the policy registered for typ. An unregistered type
// defaults to None rather than erroring, so ad hoc edge types remain
// usable without registration.
func (r *Registry) Lookup(typ string) Policy {
	return r.policies[typ]
}

// InverseOf returns the type the compensating write on shard(id2) must
// use for typ, and whether a compensating write is required at all.
// For Self it returns typ itself.
func (r *Registry) InverseOf(typ string) (string, bool) {
	switch r.Lookup(typ) {
	case Self:
		return typ, true
	case Inverse:
		return r.inverses[typ], true
	default:
		return "", false
	}
}
