package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"tenniscourts/internal/config"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	clientKeyUnknown      = "unknown"

	permReadReservations  = "read:reservations"
	permWriteReservations = "write:reservations"
	permReadSchedules     = "read:schedules"
	permWriteSchedules    = "write:schedules"
)

var (
	errMissingCredentials = errors.New("missing api key headers")
	errInvalidAPIKey      = errors.New("invalid api key")
	errInvalidExtra       = errors.New("invalid extra header")
	errPermissionDenied   = errors.New("permission denied")
	errRateLimited        = errors.New("rate limit exceeded")
)

// authenticator checks api key pairs and permissions for both transports.
type authenticator struct {
	enabled     bool
	apiKeyName  string
	extraName   string
	clients     map[string]config.APIClientKey
	rateLimiter *rateLimiter
}

func newAuthenticator(cfg config.APIConfig) *authenticator {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}

	apiKeyName := strings.ToLower(strings.TrimSpace(cfg.Auth.HeaderAPIKey))
	if apiKeyName == "" {
		apiKeyName = apiKeyHeaderDefault
	}
	extraName := strings.ToLower(strings.TrimSpace(cfg.Auth.HeaderExtra))
	if extraName == "" {
		extraName = apiExtraHeaderDefault
	}

	return &authenticator{
		enabled:     cfg.Auth.Enabled,
		apiKeyName:  apiKeyName,
		extraName:   extraName,
		clients:     m,
		rateLimiter: newRateLimiter(cfg.RateLimit),
	}
}

// authenticate validates the credentials against the permission required by the call.
// An empty permission list on a key allows everything.
func (a *authenticator) authenticate(apiKey, extra, required string) error {
	apiKey = strings.TrimSpace(apiKey)
	extra = strings.TrimSpace(extra)
	if apiKey == "" || extra == "" {
		return errMissingCredentials
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return errInvalidAPIKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return errInvalidExtra
	}

	if required == "" || len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

// AuthInterceptor guards the gRPC services.
type AuthInterceptor struct {
	auth *authenticator
}

func NewAuthInterceptor(cfg config.APIConfig) *AuthInterceptor {
	return &AuthInterceptor{auth: newAuthenticator(cfg)}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)

		if a.auth.enabled {
			if md == nil {
				return nil, status.Error(codes.Unauthenticated, "missing metadata")
			}
			err := a.auth.authenticate(first(md.Get(a.auth.apiKeyName)), first(md.Get(a.auth.extraName)), requiredPermissionGRPC(info.FullMethod))
			if errors.Is(err, errPermissionDenied) {
				return nil, status.Error(codes.PermissionDenied, err.Error())
			}
			if err != nil {
				return nil, status.Error(codes.Unauthenticated, err.Error())
			}
		}

		if !a.auth.rateLimiter.allow(grpcClientKey(ctx, md, a.auth.apiKeyName)) {
			return nil, status.Error(codes.ResourceExhausted, errRateLimited.Error())
		}
		return handler(ctx, req)
	}
}

func requiredPermissionGRPC(fullMethod string) string {
	switch fullMethod {
	case methodBook, methodCancel, methodReschedule:
		return permWriteReservations
	case methodFind:
		return permReadReservations
	case methodAddSchedule:
		return permWriteSchedules
	case methodFindSchedule, methodFreeSchedules, methodSchedulesByDates:
		return permReadSchedules
	default:
		return ""
	}
}

func grpcClientKey(ctx context.Context, md metadata.MD, apiKeyName string) string {
	if apiKey := first(md.Get(apiKeyName)); apiKey != "" {
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
