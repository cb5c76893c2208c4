package models

import (
	"time"
)

type Role string

const (
	RoleMember    Role = "member"
	RoleLibrarian Role = "librarian"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleMember || r == RoleLibrarian || r == RoleAdmin
}

type LoanStatus string

const (
	LoanActive   LoanStatus = "active"
	LoanOverdue  LoanStatus = "overdue"
	LoanReturned LoanStatus = "returned"
)

type Member struct {
	ID           uint   `gorm:"primaryKey"`
	MemberUid    string `gorm:"type:uuid;uniqueIndex;not null"`
	Name         string `gorm:"size:120;not null"`
	Email        string `gorm:"size:160;uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Phone        string `gorm:"size:40"`
	Address      string
	Role         Role `gorm:"size:20;not null"`
	IsActive     bool `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Session struct {
	ID        uint   `gorm:"primaryKey"`
	Token     string `gorm:"type:uuid;uniqueIndex;not null"`
	MemberID  uint   `gorm:"index;not null"`
	ExpiresAt time.Time
	CreatedAt time.Time

	Member Member `gorm:"foreignKey:MemberID"`
}

type Author struct {
	ID          uint   `gorm:"primaryKey"`
	AuthorUid   string `gorm:"type:uuid;uniqueIndex;not null"`
	Name        string `gorm:"size:120;not null"`
	Biography   string `gorm:"size:1000"`
	BirthDate   *time.Time
	Nationality string `gorm:"size:80"`
	Website     string
	IsActive    bool `gorm:"not null"`
	CreatedByID uint `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Book struct {
	ID              uint   `gorm:"primaryKey"`
	BookUid         string `gorm:"type:uuid;uniqueIndex;not null"`
	Title           string `gorm:"not null"`
	AuthorID        uint   `gorm:"index;not null"`
	ISBN            string `gorm:"column:isbn;size:20;uniqueIndex;not null"`
	Genre           string `gorm:"size:80;index;not null"`
	Publisher       string
	Pages           int
	Language        string `gorm:"size:40"`
	Description     string `gorm:"size:1000"`
	TotalCopies     int    `gorm:"not null;check:total_copies >= 1"`
	AvailableCopies int    `gorm:"not null;check:available_copies >= 0"`
	IsActive        bool   `gorm:"not null"`
	CreatedByID     uint   `gorm:"index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Author Author `gorm:"foreignKey:AuthorID"`
}

type Loan struct {
	ID           uint       `gorm:"primaryKey"`
	LoanUid      string     `gorm:"type:uuid;uniqueIndex;not null"`
	MemberID     uint       `gorm:"index;not null"`
	BookID       uint       `gorm:"index;not null"`
	LoanDate     time.Time  `gorm:"not null"`
	DueDate      time.Time  `gorm:"index;not null"`
	ReturnDate   *time.Time `gorm:"index"`
	Status       LoanStatus `gorm:"size:20;index;not null"`
	RenewalCount int        `gorm:"not null"`
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Member Member `gorm:"foreignKey:MemberID"`
	Book   Book   `gorm:"foreignKey:BookID"`
}

// Outstanding reports whether the loan still holds a book copy.
func (l *Loan) Outstanding() bool {
	return l.ReturnDate == nil
}

// Refresh re-derives the stored status against now.
func (l *Loan) Refresh(now time.Time) {
	l.Status = DeriveStatus(l.ReturnDate, l.DueDate, now)
}

// DeriveStatus is the single source of truth for a loan's status.
func DeriveStatus(returnDate *time.Time, dueDate time.Time, now time.Time) LoanStatus {
	if returnDate != nil {
		return LoanReturned
	}
	if dueDate.Before(now) {
		return LoanOverdue
	}
	return LoanActive
}

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{&Member{}, &Session{}, &Author{}, &Book{}, &Loan{}}
}
