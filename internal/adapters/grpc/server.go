package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/carebridge/portal-access/internal/application"
	"github.com/carebridge/portal-access/internal/domain"
)

// AccessInternalService is the internal contract other services call to
// validate portal tokens and pre-check navigation access.
type AccessInternalService interface {
	ValidateToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckAccess(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPublicKeys(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RequirementLookup resolves the static access requirement for a portal
// path. Injected so the server does not depend on HTTP route wiring.
type RequirementLookup func(path string) (domain.RouteRequirement, bool)

type AccessInternalServer struct {
	service      *application.Service
	requirements RequirementLookup
}

func NewAccessInternalServer(service *application.Service, requirements RequirementLookup) *AccessInternalServer {
	return &AccessInternalServer{service: service, requirements: requirements}
}

func Register(server grpc.ServiceRegistrar, svc AccessInternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: "carebridge.portal.v1.AccessInternalService",
		HandlerType: (*AccessInternalService)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "ValidateToken",
				Handler:    validateTokenHandler(svc),
			},
			{
				MethodName: "CheckAccess",
				Handler:    checkAccessHandler(svc),
			},
			{
				MethodName: "GetPublicKeys",
				Handler:    getPublicKeysHandler(svc),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "carebridge/contracts/proto/portal/v1/access_internal.proto",
	}, svc)
}

func (s *AccessInternalServer) ValidateToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token := stringField(req, "token")
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "missing token")
	}

	claims, err := s.service.ValidateToken(ctx, token)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	resp, err := structpb.NewStruct(map[string]any{
		"valid":      true,
		"user_id":    claims.UserID.String(),
		"email":      claims.Email,
		"role":       string(claims.Role),
		"session_id": claims.SessionID.String(),
		"expires_at": claims.ExpiresAt.Unix(),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

// CheckAccess evaluates a token against a portal path's requirement.
// An invalid token is not an error here; it yields a requires_login
// decision so callers can distinguish "log in first" from "never".
func (s *AccessInternalServer) CheckAccess(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	path := stringField(req, "path")
	if path == "" {
		return nil, status.Error(codes.InvalidArgument, "missing path")
	}
	requirement, ok := s.requirements(path)
	if !ok {
		return nil, status.Error(codes.NotFound, "unknown path")
	}

	session := domain.Anonymous()
	if token := stringField(req, "token"); token != "" {
		if st, err := s.service.ResolveState(ctx, token); err == nil && st.CheckValid() {
			session = st.Snapshot()
		}
	}

	decision := domain.Evaluate(session, requirement, path)
	fields := map[string]any{
		"decision": decision.Kind.String(),
	}
	if decision.Reason != "" {
		fields["reason"] = string(decision.Reason)
	}
	resp, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func (s *AccessInternalServer) GetPublicKeys(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	keys, err := s.service.PublicJWKs()
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get keys: %v", err)
	}
	resp, err := structpb.NewStruct(map[string]any{
		"keys": keys,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func stringField(req *structpb.Struct, name string) string {
	val := req.GetFields()[name]
	if val == nil {
		return ""
	}
	return val.GetStringValue()
}

func validateTokenHandler(svc AccessInternalService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.ValidateToken(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/carebridge.portal.v1.AccessInternalService/ValidateToken",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return svc.ValidateToken(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}

func checkAccessHandler(svc AccessInternalService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.CheckAccess(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/carebridge.portal.v1.AccessInternalService/CheckAccess",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return svc.CheckAccess(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}

func getPublicKeysHandler(svc AccessInternalService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &emptypb.Empty{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.GetPublicKeys(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/carebridge.portal.v1.AccessInternalService/GetPublicKeys",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*emptypb.Empty)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return svc.GetPublicKeys(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}
