package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"library_backend/pkg/apperror"
	"library_backend/pkg/catalog"
	"library_backend/pkg/lending"
	"library_backend/pkg/models"
)

type authorRequest struct {
	Name        string  `json:"name" binding:"required"`
	Biography   string  `json:"biography" binding:"max=1000"`
	BirthDate   *string `json:"birthDate"`
	Nationality string  `json:"nationality"`
	Website     string  `json:"website"`
}

type authorPatchRequest struct {
	Name        *string `json:"name"`
	Biography   *string `json:"biography"`
	BirthDate   *string `json:"birthDate"`
	Nationality *string `json:"nationality"`
	Website     *string `json:"website"`
}

func authorJSON(a *models.Author) gin.H {
	return gin.H{
		"authorUid":   a.AuthorUid,
		"name":        a.Name,
		"biography":   a.Biography,
		"birthDate":   a.BirthDate,
		"nationality": a.Nationality,
		"website":     a.Website,
		"isActive":    a.IsActive,
		"createdAt":   a.CreatedAt,
	}
}

func parseBirthDate(value *string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	t, err := lending.ParseDate(*value)
	if err != nil {
		return nil, apperror.InvalidInput("invalid birthDate")
	}
	return &t, nil
}

func getAuthors(c *gin.Context) {
	page, limit := pagination(c, 10)
	list, total, err := books.FindAuthors(c.Request.Context(), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	items := make([]gin.H, len(list))
	for i := range list {
		items[i] = authorJSON(&list[i])
	}
	c.JSON(http.StatusOK, gin.H{
		"page":          page,
		"pageSize":      limit,
		"totalElements": total,
		"items":         items,
	})
}

func getAuthor(c *gin.Context) {
	ctx := c.Request.Context()
	author, err := books.FindAuthorByUid(ctx, c.Param("authorUid"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !author.IsActive {
		respondError(c, apperror.NotFound("author"))
		return
	}
	written, err := books.BooksByAuthor(ctx, author.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	for i := range written {
		written[i].Author = *author
	}

	body := authorJSON(author)
	body["books"] = booksJSON(written)
	c.JSON(http.StatusOK, body)
}

func createAuthor(c *gin.Context) {
	var req authorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperror.InvalidInput(err.Error()))
		return
	}
	birthDate, err := parseBirthDate(req.BirthDate)
	if err != nil {
		respondError(c, err)
		return
	}

	author, err := books.CreateAuthor(c.Request.Context(), catalog.AuthorInput{
		Name:        req.Name,
		Biography:   req.Biography,
		BirthDate:   birthDate,
		Nationality: req.Nationality,
		Website:     req.Website,
	}, currentMember(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, authorJSON(author))
}

func loadOwnedAuthor(c *gin.Context) (*models.Author, bool) {
	author, err := books.FindAuthorByUid(c.Request.Context(), c.Param("authorUid"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if !policy(c).MutateCatalogRecord(author.CreatedByID) {
		forbidden(c)
		return nil, false
	}
	return author, true
}

func updateAuthor(c *gin.Context) {
	var req authorPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperror.InvalidInput(err.Error()))
		return
	}
	birthDate, err := parseBirthDate(req.BirthDate)
	if err != nil {
		respondError(c, err)
		return
	}
	author, ok := loadOwnedAuthor(c)
	if !ok {
		return
	}

	updated, err := books.UpdateAuthor(c.Request.Context(), author.AuthorUid, catalog.AuthorPatch{
		Name:        req.Name,
		Biography:   req.Biography,
		BirthDate:   birthDate,
		Nationality: req.Nationality,
		Website:     req.Website,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, authorJSON(updated))
}

func deleteAuthor(c *gin.Context) {
	author, ok := loadOwnedAuthor(c)
	if !ok {
		return
	}
	if err := books.DeactivateAuthor(c.Request.Context(), author.AuthorUid); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "author deleted"})
}
