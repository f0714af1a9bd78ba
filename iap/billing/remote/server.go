package remote

import (
	"context"
	"strconv"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/code-payments/cashier/iap"
	"github.com/code-payments/cashier/iap/billing"
)

const ServiceName = "cashier.billing.v3.Billing"

// Metadata keys sent with every call.
const (
	MetadataPackageName = "x-billing-package-name"
	MetadataAPIVersion  = "x-billing-api-version"
)

// Server exposes a billing.Service over gRPC.
type Server struct {
	log *zap.Logger
	svc billing.Service
}

func NewServer(log *zap.Logger, svc billing.Service) *Server {
	return &Server{
		log: log,
		svc: svc,
	}
}

func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&serviceDesc, s)
}

// ServerOptions returns the interceptor chain billing servers run with.
func ServerOptions(log *zap.Logger) []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			grpc_recovery.UnaryServerInterceptor(),
			grpc_zap.UnaryServerInterceptor(log),
		)),
		grpc.StreamInterceptor(grpc_middleware.ChainStreamServer(
			grpc_recovery.StreamServerInterceptor(),
			grpc_zap.StreamServerInterceptor(log),
		)),
	}
}

func (s *Server) checkSupport(ctx context.Context, req request) (*structpb.Struct, error) {
	log, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	itemType := billing.ItemType(req.getString(fieldItemType))
	code, err := s.svc.CheckSupport(ctx, itemType)
	if err != nil {
		log.Warn("Failed to check support", zap.String("item_type", string(itemType)), zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to check support")
	}
	return responseCodeStruct(code), nil
}

func (s *Server) fetchDetails(ctx context.Context, req request) (*structpb.Struct, error) {
	log, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	skus, err := req.getStrings(fieldSKUs)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	b, err := s.svc.FetchDetails(ctx, billing.ItemType(req.getString(fieldItemType)), skus)
	if err != nil {
		log.Warn("Failed to fetch details", zap.Strings("skus", skus), zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to fetch details")
	}
	return s.encode(log, b)
}

func (s *Server) requestPurchaseIntent(ctx context.Context, req request) (*structpb.Struct, error) {
	log, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	sku := req.getString(fieldSKU)
	log = log.With(zap.String("sku", sku))

	b, err := s.svc.RequestPurchaseIntent(
		ctx,
		sku,
		billing.ItemType(req.getString(fieldItemType)),
		req.getString(fieldDeveloperPayload),
	)
	if err != nil {
		log.Warn("Failed to request purchase intent", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to request purchase intent")
	}
	return s.encode(log, b)
}

func (s *Server) listPurchases(ctx context.Context, req request) (*structpb.Struct, error) {
	log, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	b, err := s.svc.ListPurchases(ctx, billing.ItemType(req.getString(fieldItemType)), req.getString(fieldContinuationToken))
	if err != nil {
		log.Warn("Failed to list purchases", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to list purchases")
	}
	return s.encode(log, b)
}

func (s *Server) consume(ctx context.Context, req request) (*structpb.Struct, error) {
	log, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	code, err := s.svc.Consume(ctx, req.getString(fieldToken))
	if err != nil {
		log.Warn("Failed to consume purchase", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to consume purchase")
	}
	return responseCodeStruct(code), nil
}

// caller checks the caller's metadata and returns a logger scoped to it.
func (s *Server) caller(ctx context.Context) (*zap.Logger, error) {
	md, _ := metadata.FromIncomingContext(ctx)

	var packageName string
	if values := md.Get(MetadataPackageName); len(values) > 0 {
		packageName = values[0]
	}
	if packageName == "" {
		return nil, status.Error(codes.InvalidArgument, "missing package name")
	}

	if values := md.Get(MetadataAPIVersion); len(values) > 0 {
		version, err := strconv.Atoi(values[0])
		if err != nil || version != billing.APIVersion {
			return nil, status.Errorf(codes.FailedPrecondition, "unsupported api version %q", values[0])
		}
	}

	return s.log.With(zap.String("package_name", packageName)), nil
}

func (s *Server) encode(log *zap.Logger, b iap.Bundle) (*structpb.Struct, error) {
	resp, err := encodeBundle(b)
	if err != nil {
		log.Warn("Failed to encode response", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return resp, nil
}

type method func(s *Server, ctx context.Context, req request) (*structpb.Struct, error)

func unaryHandler(name string, m method) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if in.Fields == nil {
				in.Fields = map[string]*structpb.Value{}
			}

			handler := func(ctx context.Context, req any) (any, error) {
				return m(srv.(*Server), ctx, request{req.(*structpb.Struct)})
			}
			if interceptor == nil {
				return handler(ctx, in)
			}

			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("CheckSupport", (*Server).checkSupport),
		unaryHandler("FetchDetails", (*Server).fetchDetails),
		unaryHandler("RequestPurchaseIntent", (*Server).requestPurchaseIntent),
		unaryHandler("ListPurchases", (*Server).listPurchases),
		unaryHandler("Consume", (*Server).consume),
	},
	Metadata: "cashier/billing/v3/billing.proto",
}
