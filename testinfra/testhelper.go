package testinfra

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"pneumatic/session"
	"strconv"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
)

// BuildSession builds the session of a user of the account.
func BuildSession(uid, accountID types.ID, accountOwner bool) *session.Session {
	return &session.Session{
		Context:  context.Background(),
		Token:    strconv.FormatUint(uint64(uid), 10),
		Identity: session.Identity{ID: uid, AccountID: accountID, Name: "user" + uid.String(), IsAccountOwner: accountOwner},
	}
}

// FakeAuthFilter injects s as if the gateway had authenticated it.
func FakeAuthFilter(s *session.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		session.InjectSessionIntoGinContext(c, s)
		c.Next()
	}
}

func ExecuteRequest(req *http.Request, router *gin.Engine) (int, string, *http.Response) {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), resp
}
