// Package advisor reaches the recommendation and sentiment worker over gRPC and provides
// rule-based stand-ins for when the worker is disabled.
package advisor

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"papertrade/internal/ledger"
	"papertrade/internal/strategy"
)

const (
	serviceName      = "advisor.v1.Advisor"
	methodDecide     = "/" + serviceName + "/Decide"
	methodSentiment  = "/" + serviceName + "/Sentiment"
	sourceRemote     = "advisor"
	defaultMaxRecvMB = 4
)

// Client talks to the advisor worker. Messages are google.protobuf.Struct so the worker
// needs no generated stubs beyond the well-known types.
type Client struct {
	conn *grpc.ClientConn
	own  bool
}

// Dial connects lazily to addr over plaintext.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(defaultMaxRecvMB<<20)),
	)
	if err != nil {
		return nil, fmt.Errorf("advisor dial %s: %w", addr, err)
	}
	return &Client{conn: conn, own: true}, nil
}

// NewClient wraps an existing connection. Close leaves it open.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) Close() error {
	if c.conn == nil || !c.own {
		return nil
	}
	return c.conn.Close()
}

// Decide implements strategy.RecommendationProvider.
func (c *Client) Decide(ctx context.Context, dc strategy.DecisionContext) (strategy.Recommendation, error) {
	req, err := encodeDecision(dc)
	if err != nil {
		return strategy.Recommendation{}, err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodDecide, req, resp); err != nil {
		return strategy.Recommendation{}, fmt.Errorf("advisor decide: %w", err)
	}
	return decodeRecommendation(resp), nil
}

// Sentiment implements strategy.SentimentProvider.
func (c *Client) Sentiment(ctx context.Context, asset ledger.AssetID) (strategy.Sentiment, error) {
	req, err := structpb.NewStruct(map[string]any{"asset": string(asset)})
	if err != nil {
		return strategy.Sentiment{}, err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodSentiment, req, resp); err != nil {
		return strategy.Sentiment{}, fmt.Errorf("advisor sentiment: %w", err)
	}
	return decodeSentiment(resp), nil
}
