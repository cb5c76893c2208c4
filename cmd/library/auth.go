package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"library_backend/pkg/apperror"
	"library_backend/pkg/members"
	"library_backend/pkg/models"
)

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func memberJSON(m *models.Member) gin.H {
	return gin.H{
		"memberUid": m.MemberUid,
		"name":      m.Name,
		"email":     m.Email,
		"phone":     m.Phone,
		"address":   m.Address,
		"role":      m.Role,
		"isActive":  m.IsActive,
		"createdAt": m.CreatedAt,
	}
}

// register always creates a regular member; roles are granted by an admin.
func register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperror.InvalidInput(err.Error()))
		return
	}

	ctx := c.Request.Context()
	member, err := people.Register(ctx, members.Registration{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Address:  req.Address,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	session, err := people.CreateSession(ctx, member)
	if err != nil {
		respondError(c, err)
		return
	}

	setSessionCookie(c, session.Token)
	c.JSON(http.StatusCreated, gin.H{
		"token":  session.Token,
		"member": memberJSON(member),
	})
}

func login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperror.InvalidInput(err.Error()))
		return
	}

	ctx := c.Request.Context()
	member, err := people.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	session, err := people.CreateSession(ctx, member)
	if err != nil {
		respondError(c, err)
		return
	}

	setSessionCookie(c, session.Token)
	c.JSON(http.StatusOK, gin.H{
		"token":     session.Token,
		"expiresAt": session.ExpiresAt,
		"member":    memberJSON(member),
	})
}

func logout(c *gin.Context) {
	if err := people.DeleteSession(c.Request.Context(), sessionToken(c)); err != nil {
		respondError(c, err)
		return
	}
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func profile(c *gin.Context) {
	c.JSON(http.StatusOK, memberJSON(currentMember(c)))
}

func setSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, token, 0, "/", "", false, true)
}
