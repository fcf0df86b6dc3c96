package coordstategrpc

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/nyxdb/contractcoord/internal/contract"
	"github.com/nyxdb/contractcoord/internal/coordstate"
	"github.com/nyxdb/contractcoord/pkg/api"
)

// Client is a replica-side stub for reporting acks and connectivity to
// the coordinator, and for pulling the latest diff.
type Client struct {
	conn       *grpc.ClientConn
	acks       api.AckIngestionClient
	connClient api.ConnectivityClient
	diffs      api.DiffInspectionClient
}

func NewClient(ctx context.Context, target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithInsecure())
	}
	conn, err := grpc.DialContext(ctx, target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn:       conn,
		acks:       api.NewAckIngestionClient(conn),
		connClient: api.NewConnectivityClient(conn),
		diffs:      api.NewDiffInspectionClient(conn),
	}, nil
}

func (c *Client) ReportAck(server contract.ServerID, contractID contract.ID, ack contract.Ack) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req := &api.ReportAckRequest{
		Server:     coordstate.EncodeServerID(server),
		ContractId: coordstate.EncodeContractID(contractID),
		Ack:        coordstate.EncodeAck(ack),
	}
	_, err := c.acks.ReportAck(ctx, req)
	return err
}

func (c *Client) ReportConnectivity(observer, subject contract.ServerID, connected bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.connClient.ReportConnectivity(ctx, &api.ReportConnectivityRequest{
		Observer:  coordstate.EncodeServerID(observer),
		Subject:   coordstate.EncodeServerID(subject),
		Connected: connected,
	})
	return err
}

func (c *Client) GetLatestDiff() (*api.DiffProto, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.diffs.GetLatestDiff(ctx, &api.GetLatestDiffRequest{})
	if err != nil {
		return nil, err
	}
	return resp.Diff, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
