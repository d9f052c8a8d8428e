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
	"net"

	"github.com/taodb/tao/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/cubefs/cubefs/blobstore/util/log"
)

// RPCServer is the minimal gRPC surface this process carries: health
// checks and reflection only, no generated domain service. The graph
// API itself stays on the HTTP/JSON façade.
type RPCServer struct {
	*Server

	grpcServer *grpc.Server
	healthSrv  *health.Server
	listenCfg  string
}

func NewRPCServer(s *Server) *RPCServer {
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(metrics.GRPCMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(metrics.GRPCMetrics.StreamServerInterceptor()),
	)

	healthSrv := health.NewServer()
	grpc_health_v1.RegisterHealthServer(gs, healthSrv)
	reflection.Register(gs)
	metrics.GRPCMetrics.InitializeMetrics(gs)

	return &RPCServer{Server: s, grpcServer: gs, healthSrv: healthSrv}
}

func (r *RPCServer) Serve(addr string) {
	r.listenCfg = addr
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal("grpc listen failed:", err)
	}
	r.healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	go func() {
		if err := r.grpcServer.Serve(lis); err != nil {
			log.Fatal("grpc server exits:", err)
		}
	}()
	log.Info("grpc server is running at:", addr)
}

func (r *RPCServer) Stop() {
	r.healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	r.grpcServer.GracefulStop()
}
