package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const lowStockThreshold = 2

func getDashboardStats(c *gin.Context) {
	if !policy(c).ReadAllLoans() {
		forbidden(c)
		return
	}
	ctx := c.Request.Context()

	totalBooks, err := books.CountBooks(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	totalAuthors, err := books.CountAuthors(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	totalMembers, err := people.CountActive(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	loans, err := ledger.Stats(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	copies, err := books.Totals(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	genres, err := books.PopularGenres(ctx, 5)
	if err != nil {
		respondError(c, err)
		return
	}
	activeMembers, err := ledger.MostActiveMembers(ctx, 5)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"summary": gin.H{
			"totalBooks":      totalBooks,
			"totalAuthors":    totalAuthors,
			"totalUsers":      totalMembers,
			"totalLoans":      loans.Total,
			"activeLoans":     loans.Active,
			"overdueLoans":    loans.Overdue,
			"returnedLoans":   loans.Returned,
			"totalCopies":     copies.TotalCopies,
			"availableCopies": copies.AvailableCopies,
		},
		"popularGenres": genres,
		"activeUsers":   activeMembers,
	})
}

func getRecentLoans(c *gin.Context) {
	if !policy(c).ReadAllLoans() {
		forbidden(c)
		return
	}
	recent, err := ledger.RecentLoans(c.Request.Context(), 10)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, recent)
}

func getLowStockBooks(c *gin.Context) {
	low, err := books.LowStockBooks(c.Request.Context(), lowStockThreshold, 10)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booksJSON(low))
}
