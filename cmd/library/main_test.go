package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library_backend/pkg/catalog"
	"library_backend/pkg/config"
	"library_backend/pkg/database"
	"library_backend/pkg/database/databasetest"
	"library_backend/pkg/members"
	"library_backend/pkg/models"
)

func testConfig() config.Config {
	return config.Config{
		SessionTTL: time.Hour,
		Lending:    config.Lending{LoanLimit: 5, PreventDuplicateLoans: true, MaxRenewals: 2},
	}
}

func setupTestDB(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	conn := databasetest.New(t)
	require.NoError(t, database.ApplyLendingRules(conn, cfg.Lending))
	wire(conn, cfg)
}

func createMember(t *testing.T, email string, role models.Role) *models.Member {
	member, err := people.Register(context.Background(), members.Registration{
		Name:     "Test " + string(role),
		Email:    email,
		Password: "Secret123",
		Role:     role,
	})
	require.NoError(t, err)
	return member
}

func seedBook(t *testing.T, owner *models.Member, isbn string, copies int) *models.Book {
	ctx := context.Background()
	author, err := books.CreateAuthor(ctx, catalog.AuthorInput{Name: "Jorge Luis Borges"}, owner.ID)
	require.NoError(t, err)
	book, err := books.CreateBook(ctx, catalog.BookInput{
		Title:       "Ficciones",
		AuthorUid:   author.AuthorUid,
		ISBN:        isbn,
		Genre:       "Short stories",
		TotalCopies: copies,
	}, owner.ID)
	require.NoError(t, err)
	return book
}

// newContext builds a handler context authenticated as member (nil for anonymous).
func newContext(method, target, body string, member *models.Member, params ...gin.Param) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = params
	if member != nil {
		c.Set(memberKey, member)
	}
	return c, w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

func dueIn(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format(time.RFC3339)
}

func TestHealthCheck(t *testing.T) {
	setupTestDB(t)

	c, w := newContext("GET", "/manage/health", "", nil)
	healthCheck(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "UP", decode(t, w)["status"])
}

func TestRegisterLoginAndProfile(t *testing.T) {
	setupTestDB(t)
	router := setupRouter(testConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/auth/register",
		strings.NewReader(`{"name":"Ana","email":"ana@example.com","password":"Secret123"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/auth/login",
		strings.NewReader(`{"email":"ana@example.com","password":"Secret123"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	token, _ := decode(t, w)["token"].(string)
	require.NotEmpty(t, token)

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/auth/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ana@example.com", decode(t, w)["email"])
	assert.Equal(t, "member", decode(t, w)["role"])

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/auth/profile", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	setupTestDB(t)
	router := setupRouter(testConfig())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/loans", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	setupTestDB(t)
	createMember(t, "ana@example.com", models.RoleMember)

	c, w := newContext("POST", "/api/auth/login", `{"email":"ana@example.com","password":"nope"}`, nil)
	login(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateLoanHandler(t *testing.T) {
	setupTestDB(t)
	admin := createMember(t, "admin@example.com", models.RoleAdmin)
	reader := createMember(t, "reader@example.com", models.RoleMember)
	other := createMember(t, "other@example.com", models.RoleMember)
	book := seedBook(t, admin, "9780802130303", 1)

	body := `{"bookUid":"` + book.BookUid + `","dueDate":"` + dueIn(7) + `"}`
	c, w := newContext("POST", "/api/loans", body, reader)
	createLoan(c)
	require.Equal(t, http.StatusCreated, w.Code)
	response := decode(t, w)
	assert.Equal(t, "active", response["status"])
	assert.Equal(t, reader.MemberUid, response["memberUid"])
	assert.Equal(t, "Ficciones", response["bookTitle"])

	c, w = newContext("POST", "/api/loans", body, reader)
	createLoan(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicateActiveLoan", decode(t, w)["reason"])

	c, w = newContext("POST", "/api/loans", body, other)
	createLoan(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "noCopiesAvailable", decode(t, w)["reason"])
}

func TestMemberCannotLendForSomeoneElse(t *testing.T) {
	setupTestDB(t)
	admin := createMember(t, "admin@example.com", models.RoleAdmin)
	reader := createMember(t, "reader@example.com", models.RoleMember)
	book := seedBook(t, admin, "9780802130303", 1)

	body := `{"memberUid":"` + admin.MemberUid + `","bookUid":"` + book.BookUid + `","dueDate":"` + dueIn(7) + `"}`
	c, w := newContext("POST", "/api/loans", body, reader)
	createLoan(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateLoanRejectsPastDueDate(t *testing.T) {
	setupTestDB(t)
	admin := createMember(t, "admin@example.com", models.RoleAdmin)
	book := seedBook(t, admin, "9780802130303", 1)

	body := `{"bookUid":"` + book.BookUid + `","dueDate":"` + dueIn(-1) + `"}`
	c, w := newContext("POST", "/api/loans", body, admin)
	createLoan(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoanAccessIsScopedToOwner(t *testing.T) {
	setupTestDB(t)
	admin := createMember(t, "admin@example.com", models.RoleAdmin)
	reader := createMember(t, "reader@example.com", models.RoleMember)
	stranger := createMember(t, "stranger@example.com", models.RoleMember)
	book := seedBook(t, admin, "9780802130303", 2)

	body := `{"bookUid":"` + book.BookUid + `","dueDate":"` + dueIn(7) + `"}`
	c, w := newContext("POST", "/api/loans", body, reader)
	createLoan(c)
	require.Equal(t, http.StatusCreated, w.Code)
	loanUid := decode(t, w)["loanUid"].(string)
	param := gin.Param{Key: "loanUid", Value: loanUid}

	c, w = newContext("GET", "/api/loans/"+loanUid, "", stranger, param)
	getLoan(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = newContext("PATCH", "/api/loans/"+loanUid+"/return", "", stranger, param)
	returnLoan(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = newContext("DELETE", "/api/loans/"+loanUid, "", reader, param)
	deleteLoan(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = newContext("GET", "/api/loans", "", stranger)
	getLoans(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["totalElements"])

	c, w = newContext("GET", "/api/loans", "", admin)
	getLoans(c)
	assert.Equal(t, float64(1), decode(t, w)["totalElements"])

	c, w = newContext("PATCH", "/api/loans/"+loanUid+"/return", "", reader, param)
	returnLoan(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "returned", decode(t, w)["status"])

	c, w = newContext("PATCH", "/api/loans/"+loanUid+"/return", "", reader, param)
	returnLoan(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "alreadyReturned", decode(t, w)["reason"])
}

func TestRenewAndUpdateLoan(t *testing.T) {
	setupTestDB(t)
	librarian := createMember(t, "desk@example.com", models.RoleLibrarian)
	reader := createMember(t, "reader@example.com", models.RoleMember)
	book := seedBook(t, librarian, "9780802130303", 1)

	body := `{"memberUid":"` + reader.MemberUid + `","bookUid":"` + book.BookUid + `","dueDate":"` + dueIn(7) + `"}`
	c, w := newContext("POST", "/api/loans", body, librarian)
	createLoan(c)
	require.Equal(t, http.StatusCreated, w.Code)
	loanUid := decode(t, w)["loanUid"].(string)
	param := gin.Param{Key: "loanUid", Value: loanUid}

	c, w = newContext("PATCH", "/api/loans/"+loanUid+"/renew", `{"dueDate":"`+dueIn(14)+`"}`, reader, param)
	renewLoan(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["renewalCount"])

	c, w = newContext("PUT", "/api/loans/"+loanUid, `{"status":"overdue"}`, reader, param)
	updateLoan(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = newContext("PUT", "/api/loans/"+loanUid, `{"dueDate":"`+dueIn(-3)+`"}`, librarian, param)
	updateLoan(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "overdue", decode(t, w)["status"])

	c, w = newContext("PUT", "/api/loans/"+loanUid, `{"status":"lost"}`, librarian, param)
	updateLoan(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newContext("PUT", "/api/loans/"+loanUid, `{"notes":"`+strings.Repeat("n", 501)+`"}`, librarian, param)
	updateLoan(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newContext("PUT", "/api/loans/"+loanUid, `{"notes":"`+strings.Repeat("n", 500)+`"}`, librarian, param)
	updateLoan(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSweepAndStatsAreStaffOnly(t *testing.T) {
	setupTestDB(t)
	admin := createMember(t, "admin@example.com", models.RoleAdmin)
	reader := createMember(t, "reader@example.com", models.RoleMember)

	c, w := newContext("POST", "/api/loans/sweep", "", reader)
	sweepLoans(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = newContext("POST", "/api/loans/sweep", "", admin)
	sweepLoans(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["updated"])

	c, w = newContext("GET", "/api/loans/stats", "", reader)
	getLoanStats(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = newContext("GET", "/api/dashboard/stats", "", admin)
	getDashboardStats(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, decode(t, w)["summary"])
}

func TestBookOwnership(t *testing.T) {
	setupTestDB(t)
	owner := createMember(t, "owner@example.com", models.RoleLibrarian)
	other := createMember(t, "other@example.com", models.RoleLibrarian)
	admin := createMember(t, "admin@example.com", models.RoleAdmin)
	book := seedBook(t, owner, "9780802130303", 2)
	param := gin.Param{Key: "bookUid", Value: book.BookUid}

	c, w := newContext("PUT", "/api/books/"+book.BookUid, `{"totalCopies":4}`, other, param)
	updateBook(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = newContext("PUT", "/api/books/"+book.BookUid, `{"totalCopies":4}`, owner, param)
	updateBook(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(4), decode(t, w)["availableCopies"])

	c, w = newContext("DELETE", "/api/books/"+book.BookUid, "", admin, param)
	deleteBook(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newContext("GET", "/api/books/"+book.BookUid, "", nil, param)
	getBook(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetBooksPaginates(t *testing.T) {
	setupTestDB(t)
	admin := createMember(t, "admin@example.com", models.RoleAdmin)
	seedBook(t, admin, "111", 1)
	seedBook(t, admin, "222", 1)

	c, w := newContext("GET", "/api/books?page=1&limit=1", "", nil)
	getBooks(c)

	assert.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	assert.Equal(t, float64(2), response["totalElements"])
	assert.Len(t, response["items"].([]interface{}), 1)
}

func TestUserAdministration(t *testing.T) {
	setupTestDB(t)
	admin := createMember(t, "admin@example.com", models.RoleAdmin)
	reader := createMember(t, "reader@example.com", models.RoleMember)
	param := gin.Param{Key: "memberUid", Value: reader.MemberUid}

	c, w := newContext("GET", "/api/users", "", reader)
	getUsers(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = newContext("GET", "/api/users/"+reader.MemberUid, "", reader, param)
	getUser(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newContext("PUT", "/api/users/"+reader.MemberUid, `{"role":"librarian"}`, admin, param)
	updateUser(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "librarian", decode(t, w)["role"])

	c, w = newContext("PATCH", "/api/users/"+reader.MemberUid+"/toggle-status", "", admin, param)
	toggleUserStatus(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["isActive"])

	self := gin.Param{Key: "memberUid", Value: admin.MemberUid}
	c, w = newContext("PATCH", "/api/users/"+admin.MemberUid+"/toggle-status", "", admin, self)
	toggleUserStatus(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	setupTestDB(t)

	c, w := newContext("GET", "/api/loans", "", nil)
	respondError(c, errors.Wrap(errors.New("pq: connection refused"), "find loan"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(rateLimit(1, 1))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
