package types

import (
	"context"
	"slices"
)

// Caller 是通过认证的调用方身份，由 JWT 中间件注入
type Caller struct {
	TenantID string   `json:"tenant_id,omitempty"`
	UserID   string   `json:"user_id,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// HasRole 调用方是否拥有 role
func (c Caller) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// IsZero 没有任何身份信息
func (c Caller) IsZero() bool {
	return c.TenantID == "" && c.UserID == "" && len(c.Roles) == 0
}

type callerKey struct{}

// WithCaller 把调用方身份写入 ctx。空身份不写入。
func WithCaller(ctx context.Context, c Caller) context.Context {
	if c.IsZero() {
		return ctx
	}
	c.Roles = slices.Clone(c.Roles)
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom 读取调用方身份
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

// TenantID 调用方所属租户，限流按它分桶
func TenantID(ctx context.Context) (string, bool) {
	c, _ := CallerFrom(ctx)
	return c.TenantID, c.TenantID != ""
}
