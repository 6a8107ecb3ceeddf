package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/api/handlers"
	"github.com/BaSui01/agentrelay/config"
	"github.com/BaSui01/agentrelay/types"
)

// =============================================================================
// 🔐 JWTAuth
// =============================================================================

// streamRoute 唯一接受 access_token 查询参数的路由。
// 浏览器无法在 websocket 握手上设置 Authorization 头。
const streamRoute = "/v1/runs/stream"

// relayClaims 网关签发的身份声明
type relayClaims struct {
	TenantID string   `json:"tenant_id,omitempty"`
	UserID   string   `json:"user_id,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// caller user_id 缺省时取 sub
func (c *relayClaims) caller() types.Caller {
	caller := types.Caller{TenantID: c.TenantID, UserID: c.UserID}
	if caller.UserID == "" {
		caller.UserID = c.Subject
	}
	for _, role := range c.Roles {
		if role != "" {
			caller.Roles = append(caller.Roles, role)
		}
	}
	return caller
}

var errNoSigningKey = errors.New("no key configured for signing method")

// jwtKeys 按算法选择校验密钥
type jwtKeys struct {
	hmac []byte
	rsa  *rsa.PublicKey
}

func (k jwtKeys) lookup(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(k.hmac) == 0 {
			return nil, fmt.Errorf("%w: %s", errNoSigningKey, token.Method.Alg())
		}
		return k.hmac, nil
	case *jwt.SigningMethodRSA:
		if k.rsa == nil {
			return nil, fmt.Errorf("%w: %s", errNoSigningKey, token.Method.Alg())
		}
		return k.rsa, nil
	default:
		return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
	}
}

// JWTAuth 校验 Bearer token（HS256 或 RS256），把租户、用户与角色
// 以 types.Caller 注入请求上下文。skipPaths 与 OPTIONS 请求不校验。
func JWTAuth(cfg config.JWTConfig, skipPaths []string, logger *zap.Logger) Middleware {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	keys := jwtKeys{hmac: []byte(cfg.Secret)}
	if cfg.PublicKey != "" {
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKey))
		if err != nil {
			logger.Warn("invalid RSA public key, RS256 tokens will be rejected", zap.Error(err))
		} else {
			keys.rsa = pub
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, r, "missing or malformed Authorization header")
				return
			}

			claims := &relayClaims{}
			if _, err := parser.ParseWithClaims(raw, claims, keys.lookup); err != nil {
				logger.Debug("JWT validation failed",
					zap.String("path", r.URL.Path),
					zap.Error(err))
				writeAuthError(w, r, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), claims)))
		})
	}
}

func withCaller(ctx context.Context, claims *relayClaims) context.Context {
	return types.WithCaller(ctx, claims.caller())
}

func bearerToken(r *http.Request) (string, bool) {
	if scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok &&
		strings.EqualFold(scheme, "Bearer") && tok != "" {
		return tok, true
	}
	if r.URL.Path == streamRoute {
		if tok := r.URL.Query().Get("access_token"); tok != "" {
			return tok, true
		}
	}
	return "", false
}

func writeAuthError(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="agentrelay"`)
	handlers.WriteErrorMessage(w, r, http.StatusUnauthorized, types.ErrUnauthorized, message, nil)
}
