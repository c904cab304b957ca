package guest

import (
	"errors"
	"net/http"
	"pneumatic/bizerror"
	"pneumatic/session"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/patrickmn/go-cache"
)

// HeaderGuestToken carries a token issued by IssueGuestToken.
const HeaderGuestToken = "X-Guest-Token"

var (
	PathTasks       = "/v1/tasks"
	PathGuestTokens = "/v1/guest-tokens"
)

func RegisterGuestTokensRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	tg := r.Group(PathTasks, middleWares...)
	tg.POST(":taskId/guest-tokens", handleIssueGuestToken)

	g := r.Group(PathGuestTokens, middleWares...)
	g.DELETE(":id", handleRevokeGuestToken)
}

func handleIssueGuestToken(c *gin.Context) {
	taskID, err := types.ParseID(c.Param("taskId"))
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: errors.New("invalid id '" + c.Param("taskId") + "'")})
	}
	req := IssueGuestTokenRequest{}
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	t, err := IssueGuestTokenFunc(taskID, &req, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, t)
}

func handleRevokeGuestToken(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: errors.New("invalid id '" + c.Param("id") + "'")})
	}
	if err := RevokeGuestTokenFunc(id, session.ExtractSessionFromGinContext(c)); err != nil {
		panic(err)
	}
	c.Status(http.StatusNoContent)
}

type guestEntry struct {
	session    *session.Session
	workflowID types.ID
}

func cacheKey(token string) string {
	return "guest:" + token
}

// AuthFilter accepts guest tokens on the routes of the token's workflow, identified by the id path
// parameter. Requests without a guest token fall through to the gateway authentication.
func AuthFilter() gin.HandlerFunc {
	gateway := session.GatewayAuthFilter()
	return func(ctx *gin.Context) {
		token := ctx.GetHeader(HeaderGuestToken)
		if token == "" {
			gateway(ctx)
			return
		}

		var entry *guestEntry
		if cached, found := session.TokenCache.Get(cacheKey(token)); found {
			entry, _ = cached.(*guestEntry)
		}
		if entry == nil {
			t, err := LoadGuestTokenFunc(ctx.Request.Context(), token)
			if err != nil {
				panic(err)
			}
			identity, err := session.LoadIdentityFunc(ctx.Request.Context(), t.UserID)
			if err != nil {
				panic(err)
			}
			entry = &guestEntry{
				session:    &session.Session{Token: token, Identity: *identity, SigningTime: time.Now()},
				workflowID: t.WorkflowID,
			}
			session.TokenCache.Set(cacheKey(token), entry, cache.DefaultExpiration)
		}

		if ctx.Param("id") != entry.workflowID.String() {
			panic(bizerror.ErrForbidden)
		}
		session.InjectSessionIntoGinContext(ctx, entry.session)
		ctx.Next()
	}
}
