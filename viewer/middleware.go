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

package viewer

import (
	"net/http"
	"strconv"
	"strings"

	taoerrors "github.com/taodb/tao/errors"
)

// Principal is one credential the middleware recognizes, resolved from
// configuration: a bearer token, an X-System-Token value, or an
// X-API-Key value.
type Principal struct {
	// Token is the exact credential value: the bearer token, the
	// X-System-Token value, or the X-API-Key value.
	Token        string       `json:"token"`
	ViewerID     uint64       `json:"viewer_id"`
	Roles        []string     `json:"roles"`
	Capabilities []Capability `json:"capabilities"`
}

// Authenticator resolves request credentials into a Principal. It is
// the only place raw infrastructure (HTTP headers) is parsed; business
// code never constructs a Context from raw infrastructure directly.
type Authenticator struct {
	core Core

	byBearer map[string]Principal
	bySystem map[string]Principal
	byAPIKey map[string]Principal
}

// NewAuthenticator builds an Authenticator from the three credential
// tables an operator configures.
func NewAuthenticator(core Core, bearer, system, apiKey []Principal) *Authenticator {
	a := &Authenticator{
		core:     core,
		byBearer: index(bearer),
		bySystem: index(system),
		byAPIKey: index(apiKey),
	}
	return a
}

func index(ps []Principal) map[string]Principal {
	m := make(map[string]Principal, len(ps))
	for _, p := range ps {
		m[p.Token] = p
	}
	return m
}

// Authenticate parses r's credentials and returns the resulting viewer
// context. It refuses the request (ErrUnauthorized) on a malformed or
// unrecognized credential; a request with no credential header at all
// is the anonymous viewer, not a refusal.
func (a *Authenticator) Authenticate(r *http.Request) (*Context, error) {
	if v := r.Header.Get("Authorization"); v != "" {
		token, ok := strings.CutPrefix(v, "Bearer ")
		if !ok || token == "" {
			return nil, taoerrors.ErrUnauthorized
		}
		return a.resolve(a.byBearer, token)
	}
	if v := r.Header.Get("X-System-Token"); v != "" {
		return a.resolve(a.bySystem, v)
	}
	if v := r.Header.Get("X-API-Key"); v != "" {
		return a.resolve(a.byAPIKey, v)
	}
	return Anon(a.core), nil
}

func (a *Authenticator) resolve(table map[string]Principal, token string) (*Context, error) {
	p, ok := table[token]
	if !ok {
		return nil, taoerrors.ErrUnauthorized
	}
	return New(p.ViewerID, false, p.Roles, p.Capabilities, a.core), nil
}

// ParseViewerID is a small convenience for admin/debug endpoints that
// accept a viewer id as a path parameter rather than a credential.
func ParseViewerID(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, taoerrors.ErrInvalidArgument
	}
	return v, nil
}
