package session

import (
	"context"
	"printflow/bizerror"
	"strings"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
)

const KeySecCtx = "SecCtx"
const KeySecToken = "sec_token"

func ExtractSessionFromGinContext(ctx *gin.Context) *Session {
	value, found := ctx.Get(KeySecCtx)
	if !found {
		return &Session{Context: ctx.Request.Context()}
	}
	s0, ok := value.(*Session)
	if !ok || s0.Token == "" {
		return &Session{Context: ctx.Request.Context()}
	}
	s := s0.Clone()
	s.Context = ctx.Request.Context() // trace context
	return &s
}

// ExtractToken reads the token from the sec_token cookie or a bearer Authorization header.
func ExtractToken(ctx *gin.Context) string {
	if token, err := ctx.Cookie(KeySecToken); err == nil && token != "" {
		return token
	}
	header := ctx.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// UserState is the current state of a token subject.
type UserState struct {
	IsActive    bool
	IsSuperuser bool
	IsStaff     bool
}

// LoadUserStateFunc reloads the token subject on every request; a nil state means the user is gone.
// When unset the flags carried by the token are trusted.
var LoadUserStateFunc func(ctx context.Context, id types.ID) (*UserState, error)

func SimpleAuthFilter() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		s, err := ParseToken(ExtractToken(ctx))
		if err != nil {
			panic(err)
		}
		if LoadUserStateFunc != nil {
			state, err := LoadUserStateFunc(ctx.Request.Context(), s.Identity.ID)
			if err != nil {
				panic(err)
			}
			if state == nil || !state.IsActive {
				panic(bizerror.ErrTokenInvalid)
			}
			s.IsSuperuser, s.IsStaff = state.IsSuperuser, state.IsStaff
		}
		InjectSessionIntoGinContext(ctx, s)
		ctx.Next()
	}
}

func InjectSessionIntoGinContext(ctx *gin.Context, s *Session) {
	if s != nil && s.Token != "" {
		ctx.Set(KeySecCtx, s)
	}
}
