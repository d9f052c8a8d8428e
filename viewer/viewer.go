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

// Package viewer implements the request-scoped authorization carrier:
// identity, capabilities, a correlation id, and a handle back to the
// core, built once at the system boundary and passed by reference
// through business code.
package viewer

import (
	"context"

	"github.com/google/uuid"
	taoerrors "github.com/taodb/tao/errors"
)

// Capability is one atom a viewer may hold, consulted by the core's
// pure, I/O-free authorization hook before every public operation.
type Capability string

const (
	CapReadPublic Capability = "read_public"
	CapMutateOwn  Capability = "mutate_own"
	CapAdmin      Capability = "admin"
)

// AnonymousID is the viewer_id assigned to unauthenticated requests.
const AnonymousID uint64 = 0

// Core is the subset of the TAO core a viewer context hands typed
// entity wrappers, kept as an interface here (rather than importing
// the tao package directly) so wrappers can call back through the
// viewer without the core and the viewer importing one another.
type Core interface {
	ObjAdd(ctx context.Context, vc *Context, typ string, data []byte) (uint64, error)
	ObjGet(ctx context.Context, vc *Context, id uint64) (Object, bool, error)
	ObjUpdate(ctx context.Context, vc *Context, id uint64, data []byte) (bool, error)
	ObjDelete(ctx context.Context, vc *Context, id uint64) (bool, error)
}

// Object is the minimal shape typed wrappers unmarshal Data into; it
// mirrors storage.Object without creating an import on the storage
// package from this one.
type Object struct {
	ID      uint64
	Type    string
	Data    []byte
	Created int64
	Updated int64
}

// Context is one request's viewer. It is immutable after construction
// and safe to share by reference across goroutines and suspension
// points.
type Context struct {
	ViewerID      uint64
	Anonymous     bool
	Roles         []string
	Capabilities  map[Capability]struct{}
	CorrelationID string

	core Core
}

// New constructs a viewer context directly, for callers (tests,
// system-token flows) that already know the identity and capability
// set. Business code should prefer the middleware in this package.
func New(viewerID uint64, anonymous bool, roles []string, caps []Capability, core Core) *Context {
	set := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return &Context{
		ViewerID:      viewerID,
		Anonymous:     anonymous,
		Roles:         roles,
		Capabilities:  set,
		CorrelationID: uuid.NewString(),
		core:          core,
	}
}

// Can reports whether the viewer holds cap.
func (c *Context) Can(cap Capability) bool {
	if c == nil {
		return false
	}
	_, ok := c.Capabilities[cap]
	return ok
}

// Require is the pure, I/O-free authorization hook every public core
// operation consults first: it fails with Unauthorized without ever
// touching storage.
func (c *Context) Require(cap Capability) error {
	if !c.Can(cap) {
		return taoerrors.ErrUnauthorized
	}
	return nil
}

// Core returns the handle to the TAO core this viewer was constructed
// with, so typed entity wrappers can call back without accepting the
// core as a separate parameter.
func (c *Context) Core() Core { return c.core }

// Anon builds the anonymous viewer middleware falls back to when no
// credentials are present: read_public only, no mutate/admin.
func Anon(core Core) *Context {
	return New(AnonymousID, true, nil, []Capability{CapReadPublic}, core)
}
