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

// Package server wires the TAO core into its outer surfaces: the
// HTTP/JSON façade and a minimal gRPC server carrying only
// health-check and reflection.
package server

import (
	"context"

	"github.com/cubefs/cubefs/blobstore/util/log"
	"github.com/taodb/tao/cache"
	"github.com/taodb/tao/inverse"
	"github.com/taodb/tao/kvstore"
	"github.com/taodb/tao/storage"
	"github.com/taodb/tao/tao"
	"github.com/taodb/tao/topology"
	"github.com/taodb/tao/viewer"
	"github.com/taodb/tao/wal"
)

// Config gathers every component's options plus the Authenticator's
// principal tables.
type Config struct {
	Topology topology.Config `json:"topology"`
	WAL      wal.Config      `json:"wal"`
	Cache    cache.Config    `json:"cache"`
	Core     tao.Config      `json:"core"`
	Inverses []inverse.Entry `json:"inverse_registry"`

	BearerPrincipals []viewer.Principal `json:"bearer_principals"`
	SystemPrincipals []viewer.Principal `json:"system_principals"`
	APIKeyPrincipals []viewer.Principal `json:"api_key_principals"`

	// MaxGraphUsers caps the bounded walk behind GET /api/graph.
	MaxGraphUsers int `json:"max_graph_users"`
}

func (c Config) withDefaults() Config {
	if c.MaxGraphUsers <= 0 {
		c.MaxGraphUsers = 200
	}
	return c
}

// Server holds the assembled TAO core and its authentication
// middleware; HttpServer and RPCServer are thin transports in front of
// it.
type Server struct {
	cfg  Config
	core *tao.Core
	auth *viewer.Authenticator
	topo *topology.Topology
	log  *wal.Log
}

// New assembles one running core: topology (opening one rocksdb
// engine per configured shard), the WAL, the three-tier cache, and the
// inverse registry, then recovers any pending WAL records left by a
// prior crash before returning.
func New(ctx context.Context, cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()

	invReg, err := inverse.New(cfg.Inverses)
	if err != nil {
		return nil, err
	}

	topo, err := topology.New(cfg.Topology, func(shardID uint64, addr string) (storage.Engine, error) {
		return storage.NewKVEngine(ctx, addr, kvstore.Option{})
	})
	if err != nil {
		return nil, err
	}

	walLog, err := wal.Open(ctx, cfg.WAL)
	if err != nil {
		topo.Close(ctx)
		return nil, err
	}

	c, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, err
	}

	core, err := tao.New(topo, walLog, c, invReg, cfg.Core)
	if err != nil {
		return nil, err
	}

	log.Info("replaying write-ahead log before accepting requests")
	if err := core.Recover(ctx); err != nil {
		return nil, err
	}

	auth := viewer.NewAuthenticator(core, cfg.BearerPrincipals, cfg.SystemPrincipals, cfg.APIKeyPrincipals)

	return &Server{cfg: cfg, core: core, auth: auth, topo: topo, log: walLog}, nil
}

// Core exposes the underlying TAO core, used by typed entity wrappers
// and by tests that want to bypass the HTTP façade.
func (s *Server) Core() *tao.Core { return s.core }

// Close shuts down every shard's storage engine and the write-ahead
// log.
func (s *Server) Close() {
	s.topo.Close(context.Background())
	s.log.Close()
}
