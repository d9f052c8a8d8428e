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
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/profile"
	"github.com/cubefs/cubefs/blobstore/common/rpc"
	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/log"
	taoerrors "github.com/taodb/tao/errors"
	"github.com/taodb/tao/util/limiter"
	"github.com/taodb/tao/viewer"
)

const (
	defaultShutdownTimeoutS      = 10
	defaultReadRequestTimeoutS   = 30
	defaultWriteResponseTimeoutS = 30
)

// HttpServer is the HTTP/JSON façade. Every endpoint is a thin
// translator: authenticate, call the core through the resulting viewer
// context, and wrap the outcome in the {success, data?, error?}
// envelope.
type HttpServer struct {
	httpServer *http.Server

	*Server
}

func NewHttpServer(s *Server) *HttpServer {
	return &HttpServer{Server: s}
}

func (h *HttpServer) Serve(addr string) {
	ph := profile.NewProfileHandler(addr)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      rpc.MiddlewareHandlerWith(h.newHandler(), ph),
		ReadTimeout:  defaultReadRequestTimeoutS * time.Second,
		WriteTimeout: defaultWriteResponseTimeoutS * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server exits:", err)
		}
	}()
	h.httpServer = httpServer

	log.Info("http server is running at:", addr)
}

func (h *HttpServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeoutS*time.Second)
	defer cancel()
	h.httpServer.Shutdown(ctx)
}

func (h *HttpServer) newHandler() *rpc.Router {
	rpc.GET("/api/health", h.Health)
	rpc.POST("/api/users", h.CreateUser)
	rpc.GET("/api/users/:id", h.GetUser)
	rpc.DELETE("/api/users/:id", h.DeleteUser)
	rpc.POST("/api/friendships", h.CreateFriendship)
	rpc.POST("/api/follows", h.CreateFollow)
	rpc.POST("/api/likes", h.CreateLike)
	rpc.GET("/api/users/:id/friends", h.ListFriends, rpc.OptArgsQuery())
	rpc.GET("/api/graph", h.Graph, rpc.OptArgsQuery())
	rpc.GET("/stats", h.Stats, rpc.OptArgsQuery())

	return rpc.DefaultRouter
}

// Stats reports per-shard admission state: running reads/writes and
// current throttle delay, keyed by shard id.
func (h *HttpServer) Stats(c *rpc.Context) {
	if h.topo == nil {
		c.RespondStatus(http.StatusOK)
		return
	}
	out := make(map[string]limiter.Status)
	for _, s := range h.topo.All() {
		out[strconv.FormatUint(s.ID, 10)] = s.LimitStatus()
	}
	writeOK(c.Writer, out)
}

// envelope is the {success, data?, error?} return shape shared by
// every /api endpoint.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// writeErr maps a core error kind to the HTTP status the façade
// returns.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case taoerrors.Is(err, taoerrors.ErrUnauthorized):
		status = http.StatusUnauthorized
	case taoerrors.Is(err, taoerrors.ErrNotFound):
		status = http.StatusNotFound
	case taoerrors.Is(err, taoerrors.ErrConflict):
		status = http.StatusConflict
	case taoerrors.Is(err, taoerrors.ErrInvalidArgument):
		status = http.StatusBadRequest
	case taoerrors.Is(err, taoerrors.ErrShardUnavailable):
		status = http.StatusServiceUnavailable
	case taoerrors.Is(err, taoerrors.ErrClockRegressionExceeded):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, envelope{Success: false, Error: err.Error()})
}

func (h *HttpServer) authenticate(c *rpc.Context) (*viewer.Context, bool) {
	vc, err := h.auth.Authenticate(c.Request)
	if err != nil {
		writeErr(c.Writer, err)
		return nil, false
	}
	return vc, true
}

func pathID(c *rpc.Context, name string) (uint64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeErr(c.Writer, taoerrors.ErrInvalidArgument)
		return 0, false
	}
	return id, true
}

// Health implements GET /api/health: a liveness probe with no
// authentication and no storage access.
func (h *HttpServer) Health(c *rpc.Context) {
	writeOK(c.Writer, map[string]string{"status": "ok"})
}

type createObjectRequest struct {
	Data json.RawMessage `json:"data"`
}

// CreateUser implements POST /api/users -> obj_add(vc, "user", payload).
func (h *HttpServer) CreateUser(c *rpc.Context) {
	h.createObject(c, "user")
}

func (h *HttpServer) createObject(c *rpc.Context, typ string) {
	vc, ok := h.authenticate(c)
	if !ok {
		return
	}
	var req createObjectRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		writeErr(c.Writer, taoerrors.ErrInvalidArgument)
		return
	}
	span := trace.SpanFromContext(c.Request.Context())
	id, err := h.core.ObjAdd(c.Request.Context(), vc, typ, []byte(req.Data))
	if err != nil {
		span.Warnf("obj_add(%s) failed: %s", typ, err)
		writeErr(c.Writer, err)
		return
	}
	writeOK(c.Writer, map[string]uint64{"id": id})
}

type objectResponse struct {
	ID      uint64          `json:"id"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Created int64           `json:"created"`
	Updated int64           `json:"updated"`
}

// GetUser implements GET /api/users/{id} -> obj_get; 404 on none.
func (h *HttpServer) GetUser(c *rpc.Context) {
	vc, ok := h.authenticate(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	obj, found, err := h.core.ObjGet(c.Request.Context(), vc, id)
	if err != nil {
		writeErr(c.Writer, err)
		return
	}
	if !found {
		writeErr(c.Writer, taoerrors.ErrNotFound)
		return
	}
	writeOK(c.Writer, objectResponse{ID: obj.ID, Type: obj.Type, Data: obj.Data, Created: obj.Created, Updated: obj.Updated})
}

// DeleteUser implements DELETE /api/users/{id} -> obj_delete.
func (h *HttpServer) DeleteUser(c *rpc.Context) {
	vc, ok := h.authenticate(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if _, err := h.core.ObjDelete(c.Request.Context(), vc, id); err != nil {
		writeErr(c.Writer, err)
		return
	}
	writeOK(c.Writer, nil)
}

type assocRequest struct {
	ID1 uint64 `json:"id1"`
	ID2 uint64 `json:"id2"`
}

// CreateFriendship implements POST /api/friendships -> assoc_add(vc, a, "friend", b).
func (h *HttpServer) CreateFriendship(c *rpc.Context) {
	h.createAssoc(c, "friend")
}

// CreateFollow implements POST /api/follows -> assoc_add(vc, a, "follow", b).
func (h *HttpServer) CreateFollow(c *rpc.Context) {
	h.createAssoc(c, "follow")
}

// CreateLike implements POST /api/likes -> assoc_add(vc, user, "like", target).
func (h *HttpServer) CreateLike(c *rpc.Context) {
	h.createAssoc(c, "like")
}

func (h *HttpServer) createAssoc(c *rpc.Context, typ string) {
	vc, ok := h.authenticate(c)
	if !ok {
		return
	}
	var req assocRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		writeErr(c.Writer, taoerrors.ErrInvalidArgument)
		return
	}
	if err := h.core.AssocAdd(c.Request.Context(), vc, req.ID1, typ, req.ID2, 0, nil); err != nil {
		writeErr(c.Writer, err)
		return
	}
	writeOK(c.Writer, nil)
}

// ListFriends implements GET /api/users/{id}/friends?limit=... ->
// assoc_range(vc, id, "friend", 0, limit) then obj_get_many on the
// neighbor ids.
func (h *HttpServer) ListFriends(c *rpc.Context) {
	vc, ok := h.authenticate(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit := 100
	if v := c.Request.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	ctx := c.Request.Context()
	rows, err := h.core.AssocRange(ctx, vc, id, "friend", 0, limit)
	if err != nil {
		writeErr(c.Writer, err)
		return
	}

	ids := make([]uint64, len(rows))
	for i, a := range rows {
		ids[i] = a.ID2
	}
	objs, err := h.core.ObjGetMany(ctx, vc, ids)
	if err != nil {
		writeErr(c.Writer, err)
		return
	}

	out := make([]objectResponse, 0, len(objs))
	for _, o := range objs {
		if o == nil {
			continue
		}
		out = append(out, objectResponse{ID: o.ID, Type: o.Type, Data: o.Data, Created: o.Created, Updated: o.Updated})
	}
	writeOK(c.Writer, out)
}
