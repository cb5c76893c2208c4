// Package access decides what a caller may do, per role. It holds no state.
package access

import (
	"library_backend/pkg/models"
)

// Caller is the authenticated identity behind a request.
type Caller struct {
	ID        uint
	MemberUid string
	Role      models.Role
}

func CallerFor(m *models.Member) Caller {
	return Caller{ID: m.ID, MemberUid: m.MemberUid, Role: m.Role}
}

type Policy interface {
	ReadAllLoans() bool
	ReadLoan(loan *models.Loan) bool
	CreateLoanFor(memberUid string) bool
	ReturnLoan(loan *models.Loan) bool
	RenewLoan(loan *models.Loan) bool
	ManageLoans() bool
	ReadMember(memberUid string) bool
	ManageMembers() bool
	MutateCatalogRecord(createdByID uint) bool
}

// For returns the policy of the caller's role. Unknown roles get member rights.
func For(c Caller) Policy {
	switch c.Role {
	case models.RoleAdmin:
		return adminPolicy{}
	case models.RoleLibrarian:
		return librarianPolicy{caller: c}
	default:
		return memberPolicy{caller: c}
	}
}

type adminPolicy struct{}

func (adminPolicy) ReadAllLoans() bool            { return true }
func (adminPolicy) ReadLoan(*models.Loan) bool    { return true }
func (adminPolicy) CreateLoanFor(string) bool     { return true }
func (adminPolicy) ReturnLoan(*models.Loan) bool  { return true }
func (adminPolicy) RenewLoan(*models.Loan) bool   { return true }
func (adminPolicy) ManageLoans() bool             { return true }
func (adminPolicy) ReadMember(string) bool        { return true }
func (adminPolicy) ManageMembers() bool           { return true }
func (adminPolicy) MutateCatalogRecord(uint) bool { return true }

// librarianPolicy is staff on the loan desk but owns only its own catalog records.
type librarianPolicy struct {
	caller Caller
}

func (librarianPolicy) ReadAllLoans() bool           { return true }
func (librarianPolicy) ReadLoan(*models.Loan) bool   { return true }
func (librarianPolicy) CreateLoanFor(string) bool    { return true }
func (librarianPolicy) ReturnLoan(*models.Loan) bool { return true }
func (librarianPolicy) RenewLoan(*models.Loan) bool  { return true }
func (librarianPolicy) ManageLoans() bool            { return true }
func (librarianPolicy) ReadMember(string) bool       { return true }
func (librarianPolicy) ManageMembers() bool          { return false }

func (p librarianPolicy) MutateCatalogRecord(createdByID uint) bool {
	return createdByID == p.caller.ID
}

type memberPolicy struct {
	caller Caller
}

func (memberPolicy) ReadAllLoans() bool { return false }

func (p memberPolicy) ReadLoan(loan *models.Loan) bool {
	return loan.MemberID == p.caller.ID
}

func (p memberPolicy) CreateLoanFor(memberUid string) bool {
	return memberUid == p.caller.MemberUid
}

func (p memberPolicy) ReturnLoan(loan *models.Loan) bool {
	return loan.MemberID == p.caller.ID
}

func (p memberPolicy) RenewLoan(loan *models.Loan) bool {
	return loan.MemberID == p.caller.ID
}

func (memberPolicy) ManageLoans() bool { return false }

func (p memberPolicy) ReadMember(memberUid string) bool {
	return memberUid == p.caller.MemberUid
}

func (memberPolicy) ManageMembers() bool { return false }

func (p memberPolicy) MutateCatalogRecord(createdByID uint) bool {
	return createdByID == p.caller.ID
}
