package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"library_backend/pkg/apperror"
	"library_backend/pkg/members"
	"library_backend/pkg/models"
)

type userPatchRequest struct {
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
	Role    *string `json:"role"`
}

func getUsers(c *gin.Context) {
	if !policy(c).ManageMembers() {
		forbidden(c)
		return
	}
	list, err := people.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	items := make([]gin.H, len(list))
	for i := range list {
		items[i] = memberJSON(&list[i])
	}
	c.JSON(http.StatusOK, items)
}

func getUser(c *gin.Context) {
	memberUid := c.Param("memberUid")
	if !policy(c).ReadMember(memberUid) {
		forbidden(c)
		return
	}
	member, err := people.FindByUid(c.Request.Context(), memberUid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, memberJSON(member))
}

func updateUser(c *gin.Context) {
	if !policy(c).ManageMembers() {
		forbidden(c)
		return
	}
	var req userPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperror.InvalidInput(err.Error()))
		return
	}

	patch := members.MemberPatch{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
	}
	if req.Role != nil {
		role := models.Role(*req.Role)
		patch.Role = &role
	}
	member, err := people.Update(c.Request.Context(), c.Param("memberUid"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, memberJSON(member))
}

func toggleUserStatus(c *gin.Context) {
	if !policy(c).ManageMembers() {
		forbidden(c)
		return
	}
	memberUid := c.Param("memberUid")
	if memberUid == currentMember(c).MemberUid {
		respondError(c, apperror.InvalidInput("you cannot disable your own account"))
		return
	}
	member, err := people.ToggleActive(c.Request.Context(), memberUid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, memberJSON(member))
}
