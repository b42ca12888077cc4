package grpc

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	IdentityServiceName = "gophauth.v1.Identity"
	IdentityMeMethod    = "/" + IdentityServiceName + "/Me"
)

// IdentityServer answers who the caller is. Me returns a struct with the
// "email" and "roles" fields of the authenticated principal.
type IdentityServer interface {
	Me(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
}

func RegisterIdentityServer(s grpc.ServiceRegistrar, srv IdentityServer) {
	s.RegisterService(&identityServiceDesc, srv)
}

var identityServiceDesc = grpc.ServiceDesc{
	ServiceName: IdentityServiceName,
	HandlerType: (*IdentityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Me", Handler: identityMeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gophauth/v1/identity.proto",
}

func identityMeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IdentityServer).Me(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: IdentityMeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IdentityServer).Me(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func (s *GRPCServer) Me(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	p := auth.PrincipalFromContext(ctx)
	if p == nil {
		return nil, status.Error(codes.Unauthenticated, "user is not authenticated")
	}

	roles := make([]interface{}, 0, len(p.Roles))
	for _, r := range p.Roles {
		roles = append(roles, r)
	}

	out, err := structpb.NewStruct(map[string]interface{}{
		"email": p.Identity,
		"roles": roles,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "encode identity")
	}
	return out, nil
}
