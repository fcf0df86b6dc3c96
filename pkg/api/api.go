// Package api is the coordinator's wire surface: hand-rolled gRPC
// service definitions for ack ingestion, connectivity reporting, and
// diff inspection. There is no protoc-generated code here; the
// request/response types and service descriptors are written by hand,
// the same way the rest of this module's gRPC surface is.
package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

// --- wire types shared across services ---

// RegionProto is a hash-bucket x key-range interval.
type RegionProto struct {
	HashStart uint64
	HashEnd   uint64
	KeyStart  []byte
	KeyEnd    []byte // empty means unbounded
}

// VersionProto pairs a branch id with a point reached on it.
type VersionProto struct {
	Branch []byte // uuid bytes
	Time   uint64
}

// VersionFragmentProto is one maximal sub-region of an ack's reported
// version map.
type VersionFragmentProto struct {
	Region  *RegionProto
	Version *VersionProto
}

// BirthProto is one entry of a branch-history snippet.
type BirthProto struct {
	Branch     []byte
	Parent     []byte
	Divergence uint64
}

// AckProto is the wire form of contract.Ack.
type AckProto struct {
	State            int32
	HasVersion       bool
	VersionFragments []*VersionFragmentProto
	HasBranch        bool
	Branch           []byte
	History          []*BirthProto
}

// --- AckIngestion service ---

type ReportAckRequest struct {
	Server     []byte
	ContractId []byte
	Ack        *AckProto
}

type ReportAckResponse struct{}

type AckIngestionServer interface {
	ReportAck(context.Context, *ReportAckRequest) (*ReportAckResponse, error)
}

type UnimplementedAckIngestionServer struct{}

func (UnimplementedAckIngestionServer) ReportAck(context.Context, *ReportAckRequest) (*ReportAckResponse, error) {
	return nil, fmt.Errorf("not implemented")
}

type ackIngestionServerWrapper interface {
	AckIngestionServer
}

var ackIngestionServiceDesc = grpc.ServiceDesc{
	ServiceName: "contractcoord.api.AckIngestion",
	HandlerType: (*ackIngestionServerWrapper)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ReportAck", Handler: _AckIngestion_ReportAck_Handler},
	},
}

func RegisterAckIngestionServer(s *grpc.Server, srv AckIngestionServer) {
	s.RegisterService(&ackIngestionServiceDesc, srv)
}

func _AckIngestion_ReportAck_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ReportAckRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AckIngestionServer).ReportAck(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/contractcoord.api.AckIngestion/ReportAck"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AckIngestionServer).ReportAck(ctx, req.(*ReportAckRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// AckIngestionClient is the client-side stub, hand-written the same
// way the service descriptor above is hand-written.
type AckIngestionClient interface {
	ReportAck(ctx context.Context, in *ReportAckRequest, opts ...grpc.CallOption) (*ReportAckResponse, error)
}

type ackIngestionClient struct {
	cc grpc.ClientConnInterface
}

func NewAckIngestionClient(cc grpc.ClientConnInterface) AckIngestionClient {
	return &ackIngestionClient{cc: cc}
}

func (c *ackIngestionClient) ReportAck(ctx context.Context, in *ReportAckRequest, opts ...grpc.CallOption) (*ReportAckResponse, error) {
	out := new(ReportAckResponse)
	err := c.cc.Invoke(ctx, "/contractcoord.api.AckIngestion/ReportAck", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// --- Connectivity service ---

type ReportConnectivityRequest struct {
	Observer  []byte
	Subject   []byte
	Connected bool
}

type ReportConnectivityResponse struct{}

type ConnectivityServer interface {
	ReportConnectivity(context.Context, *ReportConnectivityRequest) (*ReportConnectivityResponse, error)
}

type UnimplementedConnectivityServer struct{}

func (UnimplementedConnectivityServer) ReportConnectivity(context.Context, *ReportConnectivityRequest) (*ReportConnectivityResponse, error) {
	return nil, fmt.Errorf("not implemented")
}

type connectivityServerWrapper interface {
	ConnectivityServer
}

var connectivityServiceDesc = grpc.ServiceDesc{
	ServiceName: "contractcoord.api.Connectivity",
	HandlerType: (*connectivityServerWrapper)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ReportConnectivity", Handler: _Connectivity_ReportConnectivity_Handler},
	},
}

func RegisterConnectivityServer(s *grpc.Server, srv ConnectivityServer) {
	s.RegisterService(&connectivityServiceDesc, srv)
}

func _Connectivity_ReportConnectivity_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ReportConnectivityRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConnectivityServer).ReportConnectivity(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/contractcoord.api.Connectivity/ReportConnectivity"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ConnectivityServer).ReportConnectivity(ctx, req.(*ReportConnectivityRequest))
	}
	return interceptor(ctx, in, info, handler)
}

type ConnectivityClient interface {
	ReportConnectivity(ctx context.Context, in *ReportConnectivityRequest, opts ...grpc.CallOption) (*ReportConnectivityResponse, error)
}

type connectivityClient struct {
	cc grpc.ClientConnInterface
}

func NewConnectivityClient(cc grpc.ClientConnInterface) ConnectivityClient {
	return &connectivityClient{cc: cc}
}

func (c *connectivityClient) ReportConnectivity(ctx context.Context, in *ReportConnectivityRequest, opts ...grpc.CallOption) (*ReportConnectivityResponse, error) {
	out := new(ReportConnectivityResponse)
	err := c.cc.Invoke(ctx, "/contractcoord.api.Connectivity/ReportConnectivity", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// --- DiffInspection service ---

type ContractProto struct {
	Replicas      [][]byte
	Voters        [][]byte
	TempVoters    [][]byte // nil means absent
	HasPrimary    bool
	PrimaryServer []byte
	HasHandOver   bool
	HandOver      []byte
	Branch        []byte
}

type AddedContractProto struct {
	ContractId []byte
	Region     *RegionProto
	Contract   *ContractProto
}

type BranchRegistrationProto struct {
	Region *RegionProto
	Branch []byte
}

type DiffProto struct {
	RemoveContractIds       [][]byte
	AddContracts            []*AddedContractProto
	RegisterCurrentBranches []*BranchRegistrationProto
}

type GetLatestDiffRequest struct{}

type GetLatestDiffResponse struct {
	Diff *DiffProto
}

type DiffInspectionServer interface {
	GetLatestDiff(context.Context, *GetLatestDiffRequest) (*GetLatestDiffResponse, error)
}

type UnimplementedDiffInspectionServer struct{}

func (UnimplementedDiffInspectionServer) GetLatestDiff(context.Context, *GetLatestDiffRequest) (*GetLatestDiffResponse, error) {
	return nil, fmt.Errorf("not implemented")
}

type diffInspectionServerWrapper interface {
	DiffInspectionServer
}

var diffInspectionServiceDesc = grpc.ServiceDesc{
	ServiceName: "contractcoord.api.DiffInspection",
	HandlerType: (*diffInspectionServerWrapper)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetLatestDiff", Handler: _DiffInspection_GetLatestDiff_Handler},
	},
}

func RegisterDiffInspectionServer(s *grpc.Server, srv DiffInspectionServer) {
	s.RegisterService(&diffInspectionServiceDesc, srv)
}

func _DiffInspection_GetLatestDiff_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetLatestDiffRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DiffInspectionServer).GetLatestDiff(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/contractcoord.api.DiffInspection/GetLatestDiff"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DiffInspectionServer).GetLatestDiff(ctx, req.(*GetLatestDiffRequest))
	}
	return interceptor(ctx, in, info, handler)
}

type DiffInspectionClient interface {
	GetLatestDiff(ctx context.Context, in *GetLatestDiffRequest, opts ...grpc.CallOption) (*GetLatestDiffResponse, error)
}

type diffInspectionClient struct {
	cc grpc.ClientConnInterface
}

func NewDiffInspectionClient(cc grpc.ClientConnInterface) DiffInspectionClient {
	return &diffInspectionClient{cc: cc}
}

func (c *diffInspectionClient) GetLatestDiff(ctx context.Context, in *GetLatestDiffRequest, opts ...grpc.CallOption) (*GetLatestDiffResponse, error) {
	out := new(GetLatestDiffResponse)
	err := c.cc.Invoke(ctx, "/contractcoord.api.DiffInspection/GetLatestDiff", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}
