package advisor

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"papertrade/internal/ledger"
	"papertrade/internal/strategy"
)

// Server is the advisor.v1.Advisor service contract.
type Server interface {
	Decide(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Sentiment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes advisor.v1.Advisor for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Decide", Handler: decideHandler},
		{MethodName: "Sentiment", Handler: sentimentHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "advisor/v1/advisor.proto",
}

func Register(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}

func decideHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Decide(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodDecide}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Decide(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func sentimentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Sentiment(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSentiment}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Sentiment(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Service serves local providers over gRPC, e.g. the rule advisor for workers under test.
type Service struct {
	rec  strategy.RecommendationProvider
	sent strategy.SentimentProvider
}

func NewService(rec strategy.RecommendationProvider, sent strategy.SentimentProvider) *Service {
	return &Service{rec: rec, sent: sent}
}

func (s *Service) Decide(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rec, err := s.rec.Decide(ctx, decodeDecision(req))
	if err != nil {
		return nil, err
	}
	return encodeRecommendation(rec)
}

func (s *Service) Sentiment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	asset := ledger.AssetID(req.GetFields()["asset"].GetStringValue())
	sent, err := s.sent.Sentiment(ctx, asset)
	if err != nil {
		return nil, err
	}
	return encodeSentiment(sent)
}
