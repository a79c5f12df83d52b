package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lucasfragadev/gym-dev/internal/access"
)

const identityKey = "identity"

// maxPeekBytes bounds how much of a JSON body the gate reads to find gymId.
const maxPeekBytes = 1 << 20

// Gate runs the access stages against the request. On success the caller's
// identity is stored for handlers; on failure the request is aborted and
// the error left for Errors to render.
func Gate(stages ...access.Stage) gin.HandlerFunc {
	gate := access.Chain(stages...)
	return func(c *gin.Context) {
		req := access.Request{
			BearerToken: bearerToken(c.GetHeader("Authorization")),
			PathGymID:   c.Param(access.GymIDParam),
			QueryGymID:  c.Query(access.GymIDParam),
		}
		if cookie, err := c.Cookie(access.AccessTokenCookie); err == nil {
			req.CookieToken = cookie
		}
		if req.PathGymID == "" && req.QueryGymID == "" {
			req.BodyGymID = peekBodyGymID(c)
		}

		req, err := gate(req)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		if req.Identity != nil {
			c.Set(identityKey, *req.Identity)
		}
		c.Next()
	}
}

// CurrentIdentity returns the identity stored by Gate.
func CurrentIdentity(c *gin.Context) (access.Identity, bool) {
	value, ok := c.Get(identityKey)
	if !ok {
		return access.Identity{}, false
	}
	identity, ok := value.(access.Identity)
	return identity, ok
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// peekBodyGymID reads the gymId field of a JSON body and puts the body back
// so handlers can bind it.
func peekBodyGymID(c *gin.Context) string {
	if c.Request.Body == nil || c.ContentType() != gin.MIMEJSON {
		return ""
	}
	head, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPeekBytes))
	c.Request.Body = restoreBody(head, c.Request.Body)
	if err != nil || len(head) == 0 {
		return ""
	}

	var body struct {
		GymID json.RawMessage `json:"gymId"`
	}
	if err := json.Unmarshal(head, &body); err != nil {
		return ""
	}
	var gymID string
	if err := json.Unmarshal(body.GymID, &gymID); err != nil {
		return ""
	}
	return gymID
}

type replayedBody struct {
	io.Reader
	io.Closer
}

func restoreBody(head []byte, rest io.ReadCloser) io.ReadCloser {
	return replayedBody{Reader: io.MultiReader(bytes.NewReader(head), rest), Closer: rest}
}
