package main

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"library_backend/pkg/access"
	"library_backend/pkg/apperror"
	"library_backend/pkg/models"
)

const (
	memberKey     = "member"
	sessionCookie = "session_token"
)

func sessionToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	token, _ := c.Cookie(sessionCookie)
	return token
}

func requireAuth(c *gin.Context) {
	token := sessionToken(c)
	if token == "" {
		respondError(c, apperror.Unauthorized("authentication required"))
		c.Abort()
		return
	}
	member, err := people.ResolveSession(c.Request.Context(), token)
	if err != nil {
		respondError(c, err)
		c.Abort()
		return
	}
	c.Set(memberKey, member)
	c.Next()
}

func currentMember(c *gin.Context) *models.Member {
	value, ok := c.Get(memberKey)
	if !ok {
		return nil
	}
	member, _ := value.(*models.Member)
	return member
}

// policy returns the access policy of the authenticated caller.
func policy(c *gin.Context) access.Policy {
	member := currentMember(c)
	if member == nil {
		return access.For(access.Caller{})
	}
	return access.For(access.CallerFor(member))
}

func forbidden(c *gin.Context) {
	respondError(c, apperror.Forbidden("you are not allowed to perform this action"))
}

// respondError writes {"error", "reason"} with the status of the error kind.
// Internal failures are logged and replaced by a generic message.
func respondError(c *gin.Context, err error) {
	status := apperror.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	body := gin.H{"error": apperror.PublicMessage(err)}
	if reason := apperror.ReasonOf(err); reason != "" {
		body["reason"] = reason
	}
	c.JSON(status, body)
}

func pagination(c *gin.Context, defaultLimit int) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit < 1 || limit > 100 {
		limit = defaultLimit
	}
	return page, limit
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimit applies a token bucket per client IP. Idle clients are evicted.
func rateLimit(rps float64, burst int) gin.HandlerFunc {
	var (
		mu      sync.Mutex
		clients = make(map[string]*client)
	)

	go func() {
		for {
			time.Sleep(time.Minute)
			mu.Lock()
			for ip, c := range clients {
				if time.Since(c.lastSeen) > 3*time.Minute {
					delete(clients, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		if rps <= 0 {
			c.Next()
			return
		}
		ip := c.ClientIP()

		mu.Lock()
		cl, found := clients[ip]
		if !found {
			cl = &client{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
			clients[ip] = cl
		}
		cl.lastSeen = time.Now()
		allowed := cl.limiter.Allow()
		mu.Unlock()

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
