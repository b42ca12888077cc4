package grpc

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type TokenVerifier interface {
	Verify(token string) (*auth.Principal, error)
}

// AccessTokenInterceptor authenticates every unary call except the public
// ones. A public entry ending in "/" covers a whole service, e.g.
// "/grpc.health.v1.Health/". The verified principal is available to the
// handler through auth.PrincipalFromContext.
func AccessTokenInterceptor(v TokenVerifier, log logging.Logger, public ...string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if isPublic(info.FullMethod, public) {
			return handler(ctx, req)
		}

		accessToken := tokenFromMetadata(ctx)
		if len(accessToken) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing token")
		}

		p, err := v.Verify(accessToken)
		if err != nil {
			if common.KindOf(err) == common.KindInvalidSignature {
				log.Warn(ctx, "access token rejected", "method", info.FullMethod, "reason", err.Error())
			}
			return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
		}

		return handler(auth.WithPrincipal(ctx, p), req)
	}
}

func isPublic(method string, public []string) bool {
	for _, p := range public {
		if method == p || (strings.HasSuffix(p, "/") && strings.HasPrefix(method, p)) {
			return true
		}
	}
	return false
}

// tokenFromMetadata prefers "authorization: Bearer <jwt>" over the bare
// access_token key.
func tokenFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(common.AuthorizationHeaderName) {
		if len(v) > len(common.BearerPrefix) && strings.EqualFold(v[:len(common.BearerPrefix)], common.BearerPrefix) {
			return strings.TrimSpace(v[len(common.BearerPrefix):])
		}
	}
	if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 {
		return values[0]
	}
	return ""
}
