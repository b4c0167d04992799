package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"messbook/internal/config"
	"messbook/internal/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeaderDefault = "x-api-key"
	clientKeyUnknown    = "unknown"
)

var (
	errInvalidAPIKey = errors.New("invalid api key")
	errRateLimited   = errors.New("rate limit exceeded")
)

type actorKey struct{}

// WithActor returns ctx carrying actor.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor resolved for the request; anonymous if none.
func ActorFrom(ctx context.Context) models.Actor {
	a, _ := ctx.Value(actorKey{}).(models.Actor)
	return a
}

// Authenticator turns an API key into an actor and applies the per-client
// rate limit. A request without a key runs as the anonymous actor; a
// request with an unknown key is rejected.
type Authenticator struct {
	header  string
	clients []config.APIClientKey
	limiter *rateLimiter
}

func NewAuthenticator(cfg config.APIConfig) *Authenticator {
	header := strings.ToLower(strings.TrimSpace(cfg.Auth.HeaderAPIKey))
	if header == "" {
		header = apiKeyHeaderDefault
	}
	return &Authenticator{
		header:  header,
		clients: append([]config.APIClientKey(nil), cfg.Auth.APIKeys...),
		limiter: newRateLimiter(cfg.RateLimit),
	}
}

// resolve looks key up with a constant-time compare against every client.
func (a *Authenticator) resolve(key string) (models.Actor, error) {
	if key == "" {
		return models.Actor{}, nil
	}
	var (
		found models.Actor
		ok    bool
	)
	for _, c := range a.clients {
		if subtle.ConstantTimeCompare([]byte(c.Key), []byte(key)) == 1 {
			found, ok = c.Actor(), true
		}
	}
	if !ok {
		return models.Actor{}, errInvalidAPIKey
	}
	return found, nil
}

// Wrap authenticates HTTP requests. /healthz is left open.
func (a *Authenticator) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		key := strings.TrimSpace(r.Header.Get(a.header))
		actor, err := a.resolve(key)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		if !a.limiter.allow(httpClientKey(key, r)) {
			writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func httpClientKey(apiKey string, r *http.Request) string {
	if apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

// Unary is the gRPC counterpart of Wrap.
func (a *Authenticator) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		key := first(md.Get(a.header))

		actor, err := a.resolve(key)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		if !a.limiter.allow(grpcClientKey(ctx, key)) {
			return nil, status.Error(codes.ResourceExhausted, errRateLimited.Error())
		}
		return handler(WithActor(ctx, actor), req)
	}
}

func grpcClientKey(ctx context.Context, apiKey string) string {
	if apiKey != "" {
		return apiKey
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
