package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"library_backend/pkg/apperror"
	"library_backend/pkg/lending"
	"library_backend/pkg/models"
)

type createLoanRequest struct {
	MemberUid string `json:"memberUid"`
	BookUid   string `json:"bookUid" binding:"required"`
	DueDate   string `json:"dueDate" binding:"required"`
	Notes     string `json:"notes" binding:"max=500"`
}

type updateLoanRequest struct {
	MemberUid *string `json:"memberUid"`
	BookUid   *string `json:"bookUid"`
	DueDate   *string `json:"dueDate"`
	Status    *string `json:"status"`
	Notes     *string `json:"notes" binding:"omitempty,max=500"`
}

type renewLoanRequest struct {
	DueDate string `json:"dueDate" binding:"required"`
}

func listLoans(c *gin.Context, memberUid string) {
	page, limit := pagination(c, 20)
	items, total, err := ledger.ListLoans(c.Request.Context(), lending.LoanFilter{
		MemberUid: memberUid,
		Status:    c.Query("status"),
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"page":          page,
		"pageSize":      limit,
		"totalElements": total,
		"items":         items,
	})
}

// getLoans lists every loan for staff and only the caller's own loans otherwise.
func getLoans(c *gin.Context) {
	if policy(c).ReadAllLoans() {
		listLoans(c, c.Query("memberUid"))
		return
	}
	listLoans(c, currentMember(c).MemberUid)
}

func getMyLoans(c *gin.Context) {
	listLoans(c, currentMember(c).MemberUid)
}

func getLoansByUser(c *gin.Context) {
	memberUid := c.Param("memberUid")
	if !policy(c).ReadMember(memberUid) {
		forbidden(c)
		return
	}
	listLoans(c, memberUid)
}

func getLoanStats(c *gin.Context) {
	if !policy(c).ReadAllLoans() {
		forbidden(c)
		return
	}
	stats, err := ledger.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// loadLoan fetches the loan and applies allowed to it.
func loadLoan(c *gin.Context, allowed func(*models.Loan) bool) (*models.Loan, bool) {
	loan, err := ledger.FindLoan(c.Request.Context(), c.Param("loanUid"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if !allowed(loan) {
		forbidden(c)
		return nil, false
	}
	return loan, true
}

func getLoan(c *gin.Context) {
	loan, ok := loadLoan(c, policy(c).ReadLoan)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, lending.NewLoanView(loan))
}

func createLoan(c *gin.Context) {
	var req createLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperror.InvalidInput(err.Error()))
		return
	}
	if req.MemberUid == "" {
		req.MemberUid = currentMember(c).MemberUid
	}
	if !policy(c).CreateLoanFor(req.MemberUid) {
		forbidden(c)
		return
	}

	view, err := ledger.CreateLoan(c.Request.Context(), lending.LoanRequest{
		MemberUid: req.MemberUid,
		BookUid:   req.BookUid,
		DueDate:   req.DueDate,
		Notes:     req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func updateLoan(c *gin.Context) {
	if !policy(c).ManageLoans() {
		forbidden(c)
		return
	}
	var req updateLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperror.InvalidInput(err.Error()))
		return
	}

	view, err := ledger.UpdateLoan(c.Request.Context(), c.Param("loanUid"), lending.LoanPatch{
		MemberUid: req.MemberUid,
		BookUid:   req.BookUid,
		DueDate:   req.DueDate,
		Status:    req.Status,
		Notes:     req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func deleteLoan(c *gin.Context) {
	if !policy(c).ManageLoans() {
		forbidden(c)
		return
	}
	if err := ledger.DeleteLoan(c.Request.Context(), c.Param("loanUid")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "loan deleted"})
}

func returnLoan(c *gin.Context) {
	loan, ok := loadLoan(c, policy(c).ReturnLoan)
	if !ok {
		return
	}
	view, err := ledger.ReturnLoan(c.Request.Context(), loan.LoanUid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func renewLoan(c *gin.Context) {
	var req renewLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperror.InvalidInput(err.Error()))
		return
	}
	loan, ok := loadLoan(c, policy(c).RenewLoan)
	if !ok {
		return
	}
	view, err := ledger.RenewLoan(c.Request.Context(), loan.LoanUid, req.DueDate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func sweepLoans(c *gin.Context) {
	if !policy(c).ManageLoans() {
		forbidden(c)
		return
	}
	result, err := ledger.Sweep(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
