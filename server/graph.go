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

package server

import (
	"context"
	"strconv"

	"github.com/cubefs/cubefs/blobstore/common/rpc"
	taoerrors "github.com/taodb/tao/errors"
	"github.com/taodb/tao/viewer"
)

// graphEdgeTypes is the fixed set of association types GET /api/graph
// walks; the endpoint never discovers new edge types at runtime.
var graphEdgeTypes = []string{"friend", "follow", "like"}

type graphNode struct {
	ID   uint64 `json:"id"`
	Type string `json:"type"`
}

type graphEdge struct {
	ID1  uint64 `json:"id1"`
	Type string `json:"type"`
	ID2  uint64 `json:"id2"`
}

type graphResponse struct {
	Nodes []graphNode `json:"nodes"`
	Edges []graphEdge `json:"edges"`
}

// Graph implements GET /api/graph?max_users=...: a breadth-first walk
// over graphEdgeTypes starting from the roots the caller supplies,
// capped at maxUsers nodes, built entirely out of the core's own read
// operations.
func (h *HttpServer) Graph(c *rpc.Context) {
	vc, ok := h.authenticate(c)
	if !ok {
		return
	}

	maxUsers := h.cfg.MaxGraphUsers
	if v := c.Request.URL.Query().Get("max_users"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < maxUsers {
			maxUsers = n
		}
	}

	var roots []uint64
	for _, v := range c.Request.URL.Query()["root"] {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			roots = append(roots, id)
		}
	}
	if len(roots) == 0 {
		writeOK(c.Writer, graphResponse{})
		return
	}

	ctx := c.Request.Context()
	nodes, edges, err := h.walkGraph(ctx, vc, roots, maxUsers)
	if err != nil {
		writeErr(c.Writer, err)
		return
	}
	writeOK(c.Writer, graphResponse{Nodes: nodes, Edges: edges})
}

func (h *HttpServer) walkGraph(ctx context.Context, vc *viewer.Context, roots []uint64, maxUsers int) ([]graphNode, []graphEdge, error) {
	seen := make(map[uint64]struct{}, maxUsers)
	queue := append([]uint64{}, roots...)
	var nodes []graphNode
	var edges []graphEdge

	for len(queue) > 0 && len(seen) < maxUsers {
		id := queue[0]
		queue = queue[1:]
		if _, dup := seen[id]; dup {
			continue
		}
		obj, found, err := h.core.ObjGet(ctx, vc, id)
		if err != nil {
			if taoerrors.Is(err, taoerrors.ErrUnauthorized) {
				return nil, nil, err
			}
			continue
		}
		if !found {
			continue
		}
		seen[id] = struct{}{}
		nodes = append(nodes, graphNode{ID: obj.ID, Type: obj.Type})

		for _, typ := range graphEdgeTypes {
			rows, err := h.core.AssocRange(ctx, vc, id, typ, 0, maxUsers)
			if err != nil {
				return nil, nil, err
			}
			for _, a := range rows {
				edges = append(edges, graphEdge{ID1: a.ID1, Type: a.Type, ID2: a.ID2})
				if _, dup := seen[a.ID2]; !dup && len(seen) < maxUsers {
					queue = append(queue, a.ID2)
				}
			}
		}
	}
	return nodes, edges, nil
}
