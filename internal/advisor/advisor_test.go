package advisor

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"papertrade/internal/strategy"
)

func startServer(t *testing.T, srv Server) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	Register(s, srv)
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

type rawServer struct {
	action string
	score  float64
	err    error
}

func (r rawServer) Decide(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if r.err != nil {
		return nil, r.err
	}
	return structpb.NewStruct(map[string]any{"action": r.action})
}

func (r rawServer) Sentiment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"score": r.score, "text": "asset=" + req.Fields["asset"].GetStringValue()})
}

func decision(price, predicted, sentiment float64) strategy.DecisionContext {
	return strategy.DecisionContext{
		Asset:      "bitcoin",
		Price:      decimal.NewFromFloat(price),
		Prediction: strategy.Prediction{PredictedClose: predicted},
		Sentiment:  strategy.Sentiment{Score: sentiment},
		Report:     "Report for BITCOIN:",
	}
}

func TestClientAgainstRuleService(t *testing.T) {
	c := startServer(t, NewService(NewRuleAdvisor(), NeutralSentiment{}))
	ctx := context.Background()

	rec, err := c.Decide(ctx, decision(100, 105, 0.2))
	require.NoError(t, err)
	assert.Equal(t, strategy.ActionBuy, rec.Action)
	assert.Equal(t, sourceRules, rec.Source)

	sent, err := c.Sentiment(ctx, "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, 0.0, sent.Score)
}

func TestClientNormalisesWorkerOutput(t *testing.T) {
	c := startServer(t, rawServer{action: " sell ", score: 3})
	ctx := context.Background()

	rec, err := c.Decide(ctx, decision(100, 100, 0))
	require.NoError(t, err)
	assert.Equal(t, strategy.ActionSell, rec.Action)
	assert.Equal(t, sourceRemote, rec.Source)

	sent, err := c.Sentiment(ctx, "ethereum")
	require.NoError(t, err)
	assert.Equal(t, 1.0, sent.Score)
	assert.Equal(t, "asset=ethereum", sent.Text)
}

func TestClientUnknownActionIsHold(t *testing.T) {
	c := startServer(t, rawServer{action: "strong buy!"})
	rec, err := c.Decide(context.Background(), decision(100, 100, 0))
	require.NoError(t, err)
	assert.Equal(t, strategy.ActionHold, rec.Action)
}

func TestClientPropagatesWorkerError(t *testing.T) {
	c := startServer(t, rawServer{err: errors.New("model offline")})
	_, err := c.Decide(context.Background(), decision(100, 100, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model offline")
}

func TestRuleAdvisor(t *testing.T) {
	r := NewRuleAdvisor()
	ctx := context.Background()
	cases := []struct {
		name      string
		predicted float64
		sentiment float64
		want      strategy.Action
	}{
		{"rise with calm news buys", 102, 0, strategy.ActionBuy},
		{"rise vetoed by bad news", 102, -0.4, strategy.ActionHold},
		{"fall sells", 98, 0.5, strategy.ActionSell},
		{"panic sells", 100, -0.6, strategy.ActionSell},
		{"flat holds", 100.5, 0, strategy.ActionHold},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := r.Decide(ctx, decision(100, tc.predicted, tc.sentiment))
			require.NoError(t, err)
			assert.Equal(t, tc.want, rec.Action)
		})
	}
}

func TestDecisionCodecKeepsReport(t *testing.T) {
	in := decision(100, 101, 0.1)
	s, err := encodeDecision(in)
	require.NoError(t, err)
	out := decodeDecision(s)
	assert.Equal(t, in.Asset, out.Asset)
	assert.Equal(t, in.Report, out.Report)
	assert.True(t, out.Price.Equal(in.Price))
}
