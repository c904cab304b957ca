package session

import (
	"context"
	"errors"
	"pneumatic/account"
	"pneumatic/bizerror"
	"pneumatic/persistence"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
	"github.com/patrickmn/go-cache"
)

const TokenExpiration = 5 * time.Minute

var TokenCache = cache.New(TokenExpiration, 1*time.Minute)

const KeySecCtx = "SecCtx"

// HeaderUserID carries the id of the user authenticated by the api gateway.
const HeaderUserID = "X-User-Id"

var LoadIdentityFunc = LoadIdentity

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

// GatewayAuthFilter trusts the user id forwarded by the gateway and resolves it into an identity.
// Resolved identities are cached for TokenExpiration.
func GatewayAuthFilter() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := ctx.GetHeader(HeaderUserID)
		if token == "" {
			panic(bizerror.ErrUnauthenticated)
		}
		if cached, found := TokenCache.Get(token); found {
			if s, ok := cached.(*Session); ok {
				InjectSessionIntoGinContext(ctx, s)
				ctx.Next()
				return
			}
		}

		uid, err := types.ParseID(token)
		if err != nil {
			panic(bizerror.ErrUnauthenticated)
		}
		identity, err := LoadIdentityFunc(ctx.Request.Context(), uid)
		if err != nil {
			panic(err)
		}
		s := &Session{Token: token, Identity: *identity, SigningTime: time.Now()}
		TokenCache.Set(token, s, cache.DefaultExpiration)
		InjectSessionIntoGinContext(ctx, s)
		ctx.Next()
	}
}

func InjectSessionIntoGinContext(ctx *gin.Context, secCtx *Session) {
	if secCtx != nil && secCtx.Token != "" {
		ctx.Set(KeySecCtx, secCtx)
	}
}

func LoadIdentity(ctx context.Context, uid types.ID) (*Identity, error) {
	user, err := account.FindUser(persistence.ActiveDataSourceManager.GormDB(ctx), uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bizerror.ErrUnauthenticated
		}
		return nil, err
	}
	if !user.IsActive() {
		return nil, bizerror.ErrUnauthenticated
	}
	return &Identity{ID: user.ID, AccountID: user.AccountID, Name: user.DisplayName(), IsAccountOwner: user.IsAccountOwner}, nil
}
