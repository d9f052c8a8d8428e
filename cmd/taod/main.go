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

// Command taod is the process entry point: it loads configuration,
// assembles the TAO core (topology, WAL, cache, inverse registry),
// replays the write-ahead log, and starts the HTTP/JSON façade and the
// minimal gRPC surface in front of it.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/cubefs/cubefs/blobstore/common/config"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/cubefs/cubefs/blobstore/util/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taodb/tao/metrics"
	"github.com/taodb/tao/server"
)

// Config is the top-level process configuration: server.Config plus
// the transport bind ports and log level.
type Config struct {
	server.Config

	HttpBindPort uint32    `json:"http_bind_port"`
	GrpcBindPort uint32    `json:"grpc_bind_port"`
	LogLevel     log.Level `json:"log_level"`
}

func main() {
	config.Init("f", "", "taod.json")

	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		log.Fatal(errors.Detail(err))
	}
	log.SetOutputLevel(cfg.LogLevel)

	ctx := context.Background()
	srv, err := server.New(ctx, cfg.Config)
	if err != nil {
		log.Fatal("failed to start server: ", errors.Detail(err))
	}

	go serveMetrics(cfg.HttpBindPort + 1)

	httpServer := server.NewHttpServer(srv)
	httpServer.Serve(":" + strconv.Itoa(int(cfg.HttpBindPort)))

	grpcServer := server.NewRPCServer(srv)
	grpcServer.Serve(":" + strconv.Itoa(int(cfg.GrpcBindPort)))

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	<-ch

	log.Info("shutting down")
	grpcServer.Stop()
	httpServer.Stop()
	srv.Close()
}

// serveMetrics exposes the prometheus registry built up in the metrics
// package (core op counters, cache hit/miss, WAL pending gauge, plus
// the gRPC server metrics) on its own port, next to the main HTTP
// façade.
func serveMetrics(port uint32) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	addr := ":" + strconv.Itoa(int(port))
	log.Info("metrics server is running at:", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.Error("metrics server exited:", err)
	}
}
