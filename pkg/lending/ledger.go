// Package lending is the loan ledger: it owns loans and keeps book availability
// in step with the loans that hold a copy.
package lending

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"library_backend/pkg/apperror"
	"library_backend/pkg/catalog"
	"library_backend/pkg/config"
	"library_backend/pkg/members"
	"library_backend/pkg/models"
)

type Ledger struct {
	db      *gorm.DB
	catalog *catalog.Store
	members *members.Store
	cfg     config.Lending
	logger  *zap.Logger
	now     func() time.Time
	locks   *memberLocks
}

type Option func(*Ledger)

// WithClock replaces the wall clock used for loan dates and status derivation.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

func NewLedger(db *gorm.DB, books *catalog.Store, people *members.Store, cfg config.Lending, logger *zap.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		db:      db,
		catalog: books,
		members: people,
		cfg:     cfg,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		locks:   newMemberLocks(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type LoanRequest struct {
	MemberUid string
	BookUid   string
	DueDate   string
	Notes     string
}

// LoanPatch carries optional loan changes; nil means unchanged.
type LoanPatch struct {
	MemberUid *string
	BookUid   *string
	DueDate   *string
	Status    *string
	Notes     *string
}

type LoanFilter struct {
	MemberUid string
	Status    string
	Page      int
	Limit     int
}

func (l *Ledger) clock() time.Time {
	return l.now().UTC()
}

// CreateLoan lends one copy of a book to a member.
func (l *Ledger) CreateLoan(ctx context.Context, req LoanRequest) (*LoanView, error) {
	memberUid, err := apperror.CanonicalUid("member", req.MemberUid)
	if err != nil {
		return nil, err
	}
	bookUid, err := apperror.CanonicalUid("book", req.BookUid)
	if err != nil {
		return nil, err
	}
	req.MemberUid, req.BookUid = memberUid, bookUid
	dueDate, err := ParseDate(req.DueDate)
	if err != nil {
		return nil, err
	}
	if !dueDate.After(l.clock()) {
		return nil, apperror.InvalidInput("dueDate must be in the future")
	}

	unlock := l.locks.Lock(req.MemberUid)
	defer unlock()

	var created *models.Loan
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		books := l.catalog.WithTx(tx)
		people := l.members.WithTx(tx)
		now := l.clock()

		book, err := books.FindBookByUid(ctx, req.BookUid)
		if err != nil {
			return err
		}
		if !book.IsActive {
			return apperror.NotFound("book")
		}

		if book.AvailableCopies <= 0 {
			return l.noCopiesError(ctx, tx, people, req.MemberUid, book.ID)
		}

		// The member row lock serializes the limit and duplicate checks
		// across server instances.
		member, err := l.members.WithTx(forUpdate(tx)).FindByUid(ctx, req.MemberUid)
		if err != nil {
			return err
		}
		if !member.IsActive {
			return apperror.NotFound("member")
		}

		if err := l.checkLoanLimit(ctx, tx, member.ID, 0); err != nil {
			return err
		}
		if err := l.checkDuplicate(ctx, tx, member.ID, book.ID, 0); err != nil {
			return err
		}

		applied, err := books.AdjustAvailableCopies(ctx, book.ID, -1)
		if err != nil {
			return err
		}
		if !applied {
			return apperror.Conflict(apperror.ReasonNoCopiesAvailable, "no copies available")
		}

		loan := models.Loan{
			LoanUid:  uuid.New().String(),
			MemberID: member.ID,
			BookID:   book.ID,
			LoanDate: now,
			DueDate:  dueDate,
			Notes:    req.Notes,
		}
		loan.Refresh(now)
		if err := tx.Create(&loan).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return duplicateLoanError()
			}
			return errors.Wrap(err, "create loan")
		}

		created, err = l.findLoan(ctx, tx, loan.LoanUid)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("loan created",
		zap.String("loan", created.LoanUid),
		zap.String("member", req.MemberUid),
		zap.String("book", req.BookUid),
	)
	view := NewLoanView(created)
	return &view, nil
}

// noCopiesError reports a duplicate loan rather than exhausted stock when the
// member already holds the title.
func (l *Ledger) noCopiesError(ctx context.Context, tx *gorm.DB, people *members.Store, memberUid string, bookID uint) error {
	noCopies := apperror.Conflict(apperror.ReasonNoCopiesAvailable, "no copies available")
	if !l.cfg.PreventDuplicateLoans {
		return noCopies
	}
	member, err := people.FindByUid(ctx, memberUid)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return noCopies
		}
		return err
	}
	if err := l.checkDuplicate(ctx, tx, member.ID, bookID, 0); err != nil {
		return err
	}
	return noCopies
}

func outstanding(tx *gorm.DB) *gorm.DB {
	return tx.Model(&models.Loan{}).Where("return_date IS NULL")
}

func (l *Ledger) checkLoanLimit(ctx context.Context, tx *gorm.DB, memberID, exceptLoanID uint) error {
	if l.cfg.LoanLimit <= 0 {
		return nil
	}
	var count int64
	err := outstanding(tx.WithContext(ctx)).
		Where("member_id = ? AND id <> ?", memberID, exceptLoanID).
		Count(&count).Error
	if err != nil {
		return errors.Wrap(err, "count member loans")
	}
	if count >= int64(l.cfg.LoanLimit) {
		return apperror.Conflict(apperror.ReasonLoanLimitExceeded, "member has reached the loan limit")
	}
	return nil
}

func (l *Ledger) checkDuplicate(ctx context.Context, tx *gorm.DB, memberID, bookID, exceptLoanID uint) error {
	if !l.cfg.PreventDuplicateLoans {
		return nil
	}
	var count int64
	err := outstanding(tx.WithContext(ctx)).
		Where("member_id = ? AND book_id = ? AND id <> ?", memberID, bookID, exceptLoanID).
		Count(&count).Error
	if err != nil {
		return errors.Wrap(err, "count duplicate loans")
	}
	if count > 0 {
		return duplicateLoanError()
	}
	return nil
}

func duplicateLoanError() error {
	return apperror.Conflict(apperror.ReasonDuplicateActiveLoan, "member already has this book on loan")
}

func (l *Ledger) findLoan(ctx context.Context, tx *gorm.DB, loanUid string) (*models.Loan, error) {
	var loan models.Loan
	err := tx.WithContext(ctx).
		Preload("Member").Preload("Book").Preload("Book.Author").
		Where("loan_uid = ?", loanUid).
		First(&loan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("loan")
	}
	if err != nil {
		return nil, errors.Wrap(err, "find loan")
	}
	loan.Refresh(l.clock())
	return &loan, nil
}

// forUpdate row-locks what it reads until the transaction ends. sqlite has no row
// locks and serializes writers instead.
func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// FindLoan returns the loan with its member and book, status derived against now.
func (l *Ledger) FindLoan(ctx context.Context, loanUid string) (*models.Loan, error) {
	loanUid, err := apperror.CanonicalUid("loan", loanUid)
	if err != nil {
		return nil, err
	}
	return l.findLoan(ctx, l.db, loanUid)
}

func (l *Ledger) GetLoan(ctx context.Context, loanUid string) (*LoanView, error) {
	loan, err := l.FindLoan(ctx, loanUid)
	if err != nil {
		return nil, err
	}
	view := NewLoanView(loan)
	return &view, nil
}

// ListLoans returns one page of loans, newest first, with the total match count.
// The status filter is evaluated against the dates, not the stored column.
func (l *Ledger) ListLoans(ctx context.Context, filter LoanFilter) ([]LoanView, int64, error) {
	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := l.db.WithContext(ctx).Model(&models.Loan{})
	if filter.MemberUid != "" {
		member, err := l.members.FindByUid(ctx, filter.MemberUid)
		if err != nil {
			return nil, 0, err
		}
		query = query.Where("member_id = ?", member.ID)
	}
	if filter.Status != "" {
		status, err := parseStatus(filter.Status)
		if err != nil {
			return nil, 0, err
		}
		query = whereStatus(query, status, l.clock())
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count loans")
	}

	var loans []models.Loan
	err := query.Preload("Member").Preload("Book").Preload("Book.Author").
		Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&loans).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list loans")
	}

	now := l.clock()
	for i := range loans {
		loans[i].Refresh(now)
	}
	return NewLoanViews(loans), total, nil
}

func whereStatus(query *gorm.DB, status models.LoanStatus, now time.Time) *gorm.DB {
	switch status {
	case models.LoanReturned:
		return query.Where("return_date IS NOT NULL")
	case models.LoanOverdue:
		return query.Where("return_date IS NULL AND due_date < ?", now)
	default:
		return query.Where("return_date IS NULL AND due_date >= ?", now)
	}
}

// Stats counts loans per derived status.
func (l *Ledger) Stats(ctx context.Context) (LoanStats, error) {
	var stats LoanStats
	now := l.clock()
	base := l.db.WithContext(ctx).Model(&models.Loan{}).Session(&gorm.Session{})

	if err := base.Count(&stats.Total).Error; err != nil {
		return LoanStats{}, errors.Wrap(err, "count loans")
	}
	counts := []struct {
		status models.LoanStatus
		dest   *int64
	}{
		{models.LoanActive, &stats.Active},
		{models.LoanOverdue, &stats.Overdue},
		{models.LoanReturned, &stats.Returned},
	}
	for _, c := range counts {
		if err := whereStatus(base, c.status, now).Count(c.dest).Error; err != nil {
			return LoanStats{}, errors.Wrapf(err, "count %s loans", c.status)
		}
	}
	return stats, nil
}

// ReturnLoan records the return and gives the copy back to the book.
func (l *Ledger) ReturnLoan(ctx context.Context, loanUid string) (*LoanView, error) {
	loanUid, err := apperror.CanonicalUid("loan", loanUid)
	if err != nil {
		return nil, err
	}

	var returned *models.Loan
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loan, err := l.findLoan(ctx, forUpdate(tx), loanUid)
		if err != nil {
			return err
		}
		if !loan.Outstanding() {
			return apperror.Conflict(apperror.ReasonAlreadyReturned, "loan is already returned")
		}

		now := l.clock()
		loan.ReturnDate = &now
		loan.Refresh(now)
		if err := l.saveLoan(ctx, tx, loan, now); err != nil {
			return err
		}
		if err := l.restoreCopy(ctx, l.catalog.WithTx(tx), loan.BookID, loan.LoanUid); err != nil {
			return err
		}

		returned, err = l.findLoan(ctx, tx, loanUid)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("loan returned", zap.String("loan", loanUid))
	view := NewLoanView(returned)
	return &view, nil
}

// restoreCopy gives a copy back to a book. A refused increment means the
// counter was already full; it is logged and the operation carries on.
func (l *Ledger) restoreCopy(ctx context.Context, books *catalog.Store, bookID uint, loanUid string) error {
	applied, err := books.AdjustAvailableCopies(ctx, bookID, +1)
	if err != nil {
		return err
	}
	if !applied {
		l.logger.Warn("available copies already at total, increment clamped",
			zap.Uint("book", bookID),
			zap.String("loan", loanUid),
		)
	}
	return nil
}

func (l *Ledger) saveLoan(ctx context.Context, tx *gorm.DB, loan *models.Loan, now time.Time) error {
	err := tx.WithContext(ctx).Model(&models.Loan{}).Where("id = ?", loan.ID).Updates(map[string]interface{}{
		"member_id":     loan.MemberID,
		"book_id":       loan.BookID,
		"due_date":      loan.DueDate,
		"return_date":   loan.ReturnDate,
		"status":        loan.Status,
		"renewal_count": loan.RenewalCount,
		"notes":         loan.Notes,
		"updated_at":    now,
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return duplicateLoanError()
	}
	return errors.Wrap(err, "save loan")
}

// UpdateLoan applies a staff correction. Counter moves for a book change and
// the loan write commit or roll back together.
func (l *Ledger) UpdateLoan(ctx context.Context, loanUid string, patch LoanPatch) (*LoanView, error) {
	loanUid, err := apperror.CanonicalUid("loan", loanUid)
	if err != nil {
		return nil, err
	}
	var (
		dueDate time.Time
		status  models.LoanStatus
	)
	if patch.DueDate != nil {
		if dueDate, err = ParseDate(*patch.DueDate); err != nil {
			return nil, err
		}
	}
	if patch.Status != nil {
		if status, err = parseStatus(*patch.Status); err != nil {
			return nil, err
		}
	}
	if patch.MemberUid != nil {
		memberUid, err := apperror.CanonicalUid("member", *patch.MemberUid)
		if err != nil {
			return nil, err
		}
		patch.MemberUid = &memberUid
	}
	if patch.BookUid != nil {
		bookUid, err := apperror.CanonicalUid("book", *patch.BookUid)
		if err != nil {
			return nil, err
		}
		patch.BookUid = &bookUid
	}

	current, err := l.FindLoan(ctx, loanUid)
	if err != nil {
		return nil, err
	}
	lockKey := current.Member.MemberUid
	if patch.MemberUid != nil {
		lockKey = *patch.MemberUid
	}
	unlock := l.locks.Lock(lockKey)
	defer unlock()

	var updated *models.Loan
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		books := l.catalog.WithTx(tx)
		people := l.members.WithTx(forUpdate(tx))
		now := l.clock()

		loan, err := l.findLoan(ctx, forUpdate(tx), loanUid)
		if err != nil {
			return err
		}
		holdsCopy := loan.Outstanding()
		memberChanged, bookChanged := false, false

		if patch.MemberUid != nil && *patch.MemberUid != loan.Member.MemberUid {
			member, err := people.FindByUid(ctx, *patch.MemberUid)
			if err != nil {
				return err
			}
			if !member.IsActive {
				return apperror.NotFound("member")
			}
			if holdsCopy {
				if err := l.checkLoanLimit(ctx, tx, member.ID, loan.ID); err != nil {
					return err
				}
			}
			loan.MemberID = member.ID
			memberChanged = true
		}

		oldBookID := loan.BookID
		if patch.BookUid != nil && *patch.BookUid != loan.Book.BookUid {
			book, err := books.FindBookByUid(ctx, *patch.BookUid)
			if err != nil {
				return err
			}
			if !book.IsActive {
				return apperror.NotFound("book")
			}
			loan.BookID = book.ID
			bookChanged = true
		}

		if holdsCopy && (memberChanged || bookChanged) {
			if err := l.checkDuplicate(ctx, tx, loan.MemberID, loan.BookID, loan.ID); err != nil {
				return err
			}
		}

		if holdsCopy && bookChanged {
			if err := l.restoreCopy(ctx, books, oldBookID, loan.LoanUid); err != nil {
				return err
			}
			applied, err := books.AdjustAvailableCopies(ctx, loan.BookID, -1)
			if err != nil {
				return err
			}
			if !applied {
				return apperror.Conflict(apperror.ReasonNoCopiesAvailable, "no copies available")
			}
		}

		if patch.DueDate != nil {
			loan.DueDate = dueDate
		}
		if patch.Notes != nil {
			loan.Notes = *patch.Notes
		}
		if status == models.LoanReturned && holdsCopy {
			loan.ReturnDate = &now
			if err := l.restoreCopy(ctx, books, loan.BookID, loan.LoanUid); err != nil {
				return err
			}
		}

		loan.Refresh(now)
		if err := l.saveLoan(ctx, tx, loan, now); err != nil {
			return err
		}

		updated, err = l.findLoan(ctx, tx, loanUid)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("loan updated", zap.String("loan", loanUid))
	view := NewLoanView(updated)
	return &view, nil
}

// DeleteLoan removes the loan, giving its copy back first if it still held one.
func (l *Ledger) DeleteLoan(ctx context.Context, loanUid string) error {
	loanUid, err := apperror.CanonicalUid("loan", loanUid)
	if err != nil {
		return err
	}

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loan, err := l.findLoan(ctx, forUpdate(tx), loanUid)
		if err != nil {
			return err
		}
		if loan.Outstanding() {
			if err := l.restoreCopy(ctx, l.catalog.WithTx(tx), loan.BookID, loan.LoanUid); err != nil {
				return err
			}
		}
		if err := tx.Delete(&models.Loan{}, loan.ID).Error; err != nil {
			return errors.Wrap(err, "delete loan")
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.logger.Info("loan deleted", zap.String("loan", loanUid))
	return nil
}

// RenewLoan pushes the due date out. It has no effect on availability.
func (l *Ledger) RenewLoan(ctx context.Context, loanUid string, newDueDate string) (*LoanView, error) {
	loanUid, err := apperror.CanonicalUid("loan", loanUid)
	if err != nil {
		return nil, err
	}
	dueDate, err := ParseDate(newDueDate)
	if err != nil {
		return nil, err
	}

	var renewed *models.Loan
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := l.clock()
		loan, err := l.findLoan(ctx, forUpdate(tx), loanUid)
		if err != nil {
			return err
		}
		if !loan.Outstanding() {
			return apperror.Conflict(apperror.ReasonAlreadyReturned, "loan is already returned")
		}
		if !dueDate.After(loan.DueDate) || !dueDate.After(now) {
			return apperror.InvalidInput("new dueDate must be later than the current due date and in the future")
		}
		if l.cfg.MaxRenewals > 0 && loan.RenewalCount >= l.cfg.MaxRenewals {
			return apperror.Conflict(apperror.ReasonRenewalLimitReached, "loan cannot be renewed again")
		}

		loan.DueDate = dueDate
		loan.RenewalCount++
		loan.Refresh(now)
		if err := l.saveLoan(ctx, tx, loan, now); err != nil {
			return err
		}

		renewed, err = l.findLoan(ctx, tx, loanUid)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("loan renewed", zap.String("loan", loanUid), zap.Int("renewals", renewed.RenewalCount))
	view := NewLoanView(renewed)
	return &view, nil
}

// RecentLoans returns the latest loans for the dashboard.
func (l *Ledger) RecentLoans(ctx context.Context, limit int) ([]LoanView, error) {
	views, _, err := l.ListLoans(ctx, LoanFilter{Page: 1, Limit: limit})
	return views, err
}

// MostActiveMembers ranks members by the number of loans they ever took.
func (l *Ledger) MostActiveMembers(ctx context.Context, limit int) ([]MemberActivity, error) {
	var activity []MemberActivity
	err := l.db.WithContext(ctx).Model(&models.Loan{}).
		Select("members.member_uid, members.name, members.email, COUNT(loans.id) AS loan_count").
		Joins("JOIN members ON members.id = loans.member_id").
		Group("members.id, members.member_uid, members.name, members.email").
		Order("loan_count DESC").Order("members.name").
		Limit(limit).
		Scan(&activity).Error
	if err != nil {
		return nil, errors.Wrap(err, "rank members by loans")
	}
	return activity, nil
}
