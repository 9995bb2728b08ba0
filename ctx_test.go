package auth

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func TestClaimsFromContext(t *testing.T) {
	tests := []struct {
		name      string
		setupCtx  func() context.Context
		wantOK    bool
		wantActor string
	}{
		{
			name: "should return claims when present in context",
			setupCtx: func() context.Context {
				claims := &JWTClaims{
					RegisteredClaims: jwt.RegisteredClaims{Subject: "user123"},
					Email:            "jdoe@example.com",
					Roles:            []string{"Admin"},
				}
				return WithClaimsContext(context.Background(), claims)
			},
			wantOK:    true,
			wantActor: "jdoe@example.com",
		},
		{
			name: "should fall back to subject without email",
			setupCtx: func() context.Context {
				claims := &JWTClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user123"}}
				return WithClaimsContext(context.Background(), claims)
			},
			wantOK:    true,
			wantActor: "user123",
		},
		{
			name: "should return false when no claims in context",
			setupCtx: func() context.Context {
				return context.Background()
			},
			wantOK:    false,
			wantActor: "anonymous",
		},
		{
			name: "should return false for nil claims",
			setupCtx: func() context.Context {
				return WithClaimsContext(context.Background(), nil)
			},
			wantOK:    false,
			wantActor: "anonymous",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := tt.setupCtx()

			_, ok := ClaimsFromContext(ctx)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantActor, actorFromContext(ctx))
		})
	}
}

func TestHasRole(t *testing.T) {
	ctx := WithClaimsContext(context.Background(), &JWTClaims{Roles: []string{"Admin"}})

	assert.True(t, HasRole(ctx, "admin"))
	assert.False(t, HasRole(ctx, "Seller"))
	assert.False(t, HasRole(context.Background(), "Admin"))
}
