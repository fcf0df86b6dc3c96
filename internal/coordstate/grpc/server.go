// Package coordstategrpc adapts a coordstate.Store to the coordinator's
// gRPC surface: replicas report acks and connectivity, operators pull
// the latest diff.
package coordstategrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nyxdb/contractcoord/internal/coordstate"
	"github.com/nyxdb/contractcoord/internal/observability/metrics"
	"github.com/nyxdb/contractcoord/pkg/api"
)

// Server adapts coordstate.Store to the ack-ingestion and connectivity
// gRPC services.
type Server struct {
	api.UnimplementedAckIngestionServer
	api.UnimplementedConnectivityServer
	api.UnimplementedDiffInspectionServer

	store      *coordstate.Store
	collector  *metrics.CoordinatorCollector
	latestDiff *api.DiffProto
}

// NewServer wraps store for gRPC serving. collector may be nil, in
// which case ingestion is not observed.
func NewServer(store *coordstate.Store, collector *metrics.CoordinatorCollector) *Server {
	return &Server{store: store, collector: collector}
}

func (s *Server) ReportAck(ctx context.Context, req *api.ReportAckRequest) (*api.ReportAckResponse, error) {
	server, err := coordstate.DecodeServerID(req.Server)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	contractID, err := coordstate.DecodeContractID(req.ContractId)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	ack, err := coordstate.DecodeAck(req.Ack)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.store.PutAck(server, contractID, ack); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	if len(ack.History) > 0 {
		_ = s.store.MergeHistory(ack.History)
	}
	if s.collector != nil {
		s.collector.ObserveAckIngested()
	}
	return &api.ReportAckResponse{}, nil
}

func (s *Server) ReportConnectivity(ctx context.Context, req *api.ReportConnectivityRequest) (*api.ReportConnectivityResponse, error) {
	observer, err := coordstate.DecodeServerID(req.Observer)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	subject, err := coordstate.DecodeServerID(req.Subject)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.store.ReportConnectivity(observer, subject, req.Connected); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &api.ReportConnectivityResponse{}, nil
}

// SetLatestDiff is called by the coordinator's calculation loop after
// each CalculateAllContracts invocation, so GetLatestDiff can serve it
// without recomputation.
func (s *Server) SetLatestDiff(diff *api.DiffProto) {
	s.latestDiff = diff
}

func (s *Server) GetLatestDiff(ctx context.Context, req *api.GetLatestDiffRequest) (*api.GetLatestDiffResponse, error) {
	return &api.GetLatestDiffResponse{Diff: s.latestDiff}, nil
}

func Register(server *grpc.Server, s *Server) {
	api.RegisterAckIngestionServer(server, s)
	api.RegisterConnectivityServer(server, s)
	api.RegisterDiffInspectionServer(server, s)
}
