package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"library_backend/pkg/apperror"
	"library_backend/pkg/catalog"
	"library_backend/pkg/models"
)

type bookRequest struct {
	Title       string `json:"title" binding:"required"`
	AuthorUid   string `json:"authorUid" binding:"required"`
	ISBN        string `json:"isbn" binding:"required"`
	Genre       string `json:"genre" binding:"required"`
	Publisher   string `json:"publisher"`
	Pages       int    `json:"pages" binding:"gte=0"`
	Language    string `json:"language"`
	Description string `json:"description" binding:"max=1000"`
	TotalCopies int    `json:"totalCopies" binding:"required,gte=1"`
}

type bookPatchRequest struct {
	Title       *string `json:"title"`
	AuthorUid   *string `json:"authorUid"`
	ISBN        *string `json:"isbn"`
	Genre       *string `json:"genre"`
	Publisher   *string `json:"publisher"`
	Pages       *int    `json:"pages"`
	Language    *string `json:"language"`
	Description *string `json:"description"`
	TotalCopies *int    `json:"totalCopies"`
}

func bookJSON(b *models.Book) gin.H {
	return gin.H{
		"bookUid":         b.BookUid,
		"title":           b.Title,
		"author":          gin.H{"authorUid": b.Author.AuthorUid, "name": b.Author.Name},
		"isbn":            b.ISBN,
		"genre":           b.Genre,
		"publisher":       b.Publisher,
		"pages":           b.Pages,
		"language":        b.Language,
		"description":     b.Description,
		"totalCopies":     b.TotalCopies,
		"availableCopies": b.AvailableCopies,
		"isActive":        b.IsActive,
		"createdAt":       b.CreatedAt,
	}
}

func booksJSON(list []models.Book) []gin.H {
	items := make([]gin.H, len(list))
	for i := range list {
		items[i] = bookJSON(&list[i])
	}
	return items
}

func getBooks(c *gin.Context) {
	page, limit := pagination(c, 10)
	list, total, err := books.FindBooks(c.Request.Context(), catalog.BookQuery{
		Search: c.Query("search"),
		Genre:  c.Query("genre"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"page":          page,
		"pageSize":      limit,
		"totalElements": total,
		"totalPages":    (total + int64(limit) - 1) / int64(limit),
		"items":         booksJSON(list),
	})
}

func getGenres(c *gin.Context) {
	genres, err := books.Genres(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, genres)
}

func getBook(c *gin.Context) {
	book, err := books.FindBookByUid(c.Request.Context(), c.Param("bookUid"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !book.IsActive {
		respondError(c, apperror.NotFound("book"))
		return
	}
	c.JSON(http.StatusOK, bookJSON(book))
}

func createBook(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperror.InvalidInput(err.Error()))
		return
	}

	book, err := books.CreateBook(c.Request.Context(), catalog.BookInput{
		Title:       req.Title,
		AuthorUid:   req.AuthorUid,
		ISBN:        req.ISBN,
		Genre:       req.Genre,
		Publisher:   req.Publisher,
		Pages:       req.Pages,
		Language:    req.Language,
		Description: req.Description,
		TotalCopies: req.TotalCopies,
	}, currentMember(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bookJSON(book))
}

// loadOwnedBook fetches the book and checks the caller may change it.
func loadOwnedBook(c *gin.Context) (*models.Book, bool) {
	book, err := books.FindBookByUid(c.Request.Context(), c.Param("bookUid"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if !policy(c).MutateCatalogRecord(book.CreatedByID) {
		forbidden(c)
		return nil, false
	}
	return book, true
}

func updateBook(c *gin.Context) {
	var req bookPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperror.InvalidInput(err.Error()))
		return
	}
	book, ok := loadOwnedBook(c)
	if !ok {
		return
	}

	updated, err := books.UpdateBook(c.Request.Context(), book.BookUid, catalog.BookPatch{
		Title:       req.Title,
		AuthorUid:   req.AuthorUid,
		ISBN:        req.ISBN,
		Genre:       req.Genre,
		Publisher:   req.Publisher,
		Pages:       req.Pages,
		Language:    req.Language,
		Description: req.Description,
		TotalCopies: req.TotalCopies,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookJSON(updated))
}

func deleteBook(c *gin.Context) {
	book, ok := loadOwnedBook(c)
	if !ok {
		return
	}
	if err := books.DeactivateBook(c.Request.Context(), book.BookUid); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "book deleted"})
}
