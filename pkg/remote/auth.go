package remote

import (
	"context"
	"crypto/subtle"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// TokenType selects the metadata key a token is sent under.
type TokenType int

const (
	APIToken TokenType = iota
	AccessToken
)

func (t TokenType) Key() string {
	if t == AccessToken {
		return "accesstoken"
	}
	return "api_token"
}

func ParseTokenType(s string) (TokenType, bool) {
	switch strings.ToLower(s) {
	case "", "api_token", "apitoken":
		return APIToken, true
	case "accesstoken", "access_token":
		return AccessToken, true
	}
	return APIToken, false
}

// TokenInterceptor attaches the token to every outgoing call. An empty token
// attaches nothing.
func TokenInterceptor(tokenType TokenType, token string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if token != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, tokenType.Key(), token)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// RequireToken rejects calls that carry neither key with the expected
// token. An empty token disables the check.
func RequireToken(token string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if token == "" {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		for _, key := range []string{APIToken.Key(), AccessToken.Key()} {
			for _, got := range md.Get(key) {
				if subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1 {
					return handler(ctx, req)
				}
			}
		}
		return nil, status.Errorf(codes.Unauthenticated, "%s: missing or invalid token", info.FullMethod)
	}
}
