package lending

import (
	"strings"
	"time"

	"library_backend/pkg/apperror"
	"library_backend/pkg/models"
)

// LoanView is a loan enriched with member and book display fields.
type LoanView struct {
	LoanUid      string            `json:"loanUid"`
	MemberUid    string            `json:"memberUid"`
	MemberName   string            `json:"memberName"`
	MemberEmail  string            `json:"memberEmail"`
	BookUid      string            `json:"bookUid"`
	BookTitle    string            `json:"bookTitle"`
	BookISBN     string            `json:"bookIsbn"`
	AuthorName   string            `json:"authorName"`
	LoanDate     time.Time         `json:"loanDate"`
	DueDate      time.Time         `json:"dueDate"`
	ReturnDate   *time.Time        `json:"returnDate"`
	Status       models.LoanStatus `json:"status"`
	RenewalCount int               `json:"renewalCount"`
	Notes        string            `json:"notes,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// NewLoanView expects Member, Book and Book.Author to be loaded.
func NewLoanView(loan *models.Loan) LoanView {
	return LoanView{
		LoanUid:      loan.LoanUid,
		MemberUid:    loan.Member.MemberUid,
		MemberName:   loan.Member.Name,
		MemberEmail:  loan.Member.Email,
		BookUid:      loan.Book.BookUid,
		BookTitle:    loan.Book.Title,
		BookISBN:     loan.Book.ISBN,
		AuthorName:   loan.Book.Author.Name,
		LoanDate:     loan.LoanDate,
		DueDate:      loan.DueDate,
		ReturnDate:   loan.ReturnDate,
		Status:       loan.Status,
		RenewalCount: loan.RenewalCount,
		Notes:        loan.Notes,
		CreatedAt:    loan.CreatedAt,
	}
}

func NewLoanViews(loans []models.Loan) []LoanView {
	views := make([]LoanView, 0, len(loans))
	for i := range loans {
		views = append(views, NewLoanView(&loans[i]))
	}
	return views
}

type LoanStats struct {
	Total    int64 `json:"totalLoans"`
	Active   int64 `json:"activeLoans"`
	Overdue  int64 `json:"overdueLoans"`
	Returned int64 `json:"returnedLoans"`
}

type MemberActivity struct {
	MemberUid string `json:"memberUid"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	LoanCount int64  `json:"loanCount"`
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"}

// ParseDate accepts RFC 3339 timestamps and bare dates, the latter at midnight UTC.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, apperror.InvalidInput("date is required")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperror.InvalidInput("invalid date: " + value)
}

func parseStatus(value string) (models.LoanStatus, error) {
	switch status := models.LoanStatus(value); status {
	case models.LoanActive, models.LoanOverdue, models.LoanReturned:
		return status, nil
	default:
		return "", apperror.InvalidInput("status must be one of active, overdue, returned")
	}
}
