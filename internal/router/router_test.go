package router

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"bookbase/internal/auth"
	"bookbase/internal/config"
	"bookbase/internal/handler"
	"bookbase/internal/model"
	"bookbase/internal/repository"
	"bookbase/internal/service"
	"bookbase/internal/storage"
	"bookbase/internal/testutil"
)

// memoryTokenStore keeps revoked token IDs in memory. Setting unavailable
// makes revocation fail like a Redis outage.
type memoryTokenStore struct {
	mu          sync.Mutex
	revoked     map[string]bool
	unavailable bool
}

func (s *memoryTokenStore) RevokeAccessToken(_ context.Context, tokenID string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return stderrors.New("revoke token: connection refused")
	}
	s.revoked[tokenID] = true
	return nil
}

func (s *memoryTokenStore) IsAccessTokenRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked[tokenID], nil
}

type testServer struct {
	t      *testing.T
	e      *echo.Echo
	db     *gorm.DB
	covers *storage.CoverStore
	tokens *memoryTokenStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{
		CORSOrigins:   []string{"http://localhost:3000"},
		MaxUploadSize: 1024,
		LateFeePerDay: decimal.RequireFromString("0.50"),
	}
	gormDB := testutil.NewTestDB(t)
	covers, err := storage.NewCoverStore(t.TempDir(), []string{"jpg", "jpeg", "png", "gif"}, cfg.MaxUploadSize)
	require.NoError(t, err)

	store := repository.NewStore(gormDB)
	jwtService := auth.NewJWTService("test-secret", time.Minute)
	tokens := &memoryTokenStore{revoked: map[string]bool{}}
	authService := service.NewAuthService(store.Users, jwtService, tokens)

	e := echo.New()
	Register(
		e,
		cfg,
		jwtService,
		authService,
		handler.NewAuthHandler(authService),
		handler.NewBookHandler(service.NewBookService(store, covers, nil), covers),
		handler.NewLoanHandler(service.NewLoanService(store, cfg.LateFeePerDay)),
		handler.NewUserHandler(service.NewUserService(store.Users, nil)),
	)
	return &testServer{t: t, e: e, db: gormDB, covers: covers, tokens: tokens}
}

func (s *testServer) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return s.do(req, token)
}

func (s *testServer) doMultipart(method, path string, fields map[string]string, fileName string, fileContent []byte, token string) *httptest.ResponseRecorder {
	s.t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(s.t, w.WriteField(k, v))
	}
	if fileName != "" {
		part, err := w.CreateFormFile("cover", fileName)
		require.NoError(s.t, err)
		_, err = part.Write(fileContent)
		require.NoError(s.t, err)
	}
	require.NoError(s.t, w.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return s.do(req, token)
}

// login registers a user with the given role and returns the user and a token.
func (s *testServer) login(role model.Role) (*model.User, string) {
	s.t.Helper()
	n := time.Now().UnixNano()
	email := fmt.Sprintf("%s-%d@example.com", role, n)

	rec := s.doJSON(http.MethodPost, "/auth/register", map[string]interface{}{
		"name":     string(role) + " user",
		"email":    email,
		"password": "secret123",
		"role":     role,
	}, "")
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())

	var user model.User
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &user))

	form := url.Values{"username": {email}, "password": {"secret123"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec = s.do(req, "")
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())

	var tokenResp handler.TokenResponse
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &tokenResp))
	assert.Equal(s.t, "bearer", tokenResp.TokenType)
	return &user, tokenResp.AccessToken
}

func bookFields(isbn string) map[string]string {
	return map[string]string{
		"title":       "O Cortiço",
		"author":      "Aluísio Azevedo",
		"isbn":        isbn,
		"year":        "1890",
		"copies":      "1",
		"category":    "Romance",
		"pages":       "300",
		"description": "Naturalist novel.",
	}
}

func decodeCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Code
}

func TestHealthAndWelcome(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/", "/healthz", "/api/health"} {
		rec := s.do(httptest.NewRequest(http.MethodGet, path, nil), "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestAuthRoutes(t *testing.T) {
	s := newTestServer(t)

	t.Run("duplicate email", func(t *testing.T) {
		body := map[string]interface{}{"name": "Ana", "email": "ana@example.com", "password": "secret123"}
		require.Equal(t, http.StatusCreated, s.doJSON(http.MethodPost, "/auth/register", body, "").Code)

		rec := s.doJSON(http.MethodPost, "/auth/register", body, "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "EMAIL_TAKEN", decodeCode(t, rec))
	})

	t.Run("validation", func(t *testing.T) {
		rec := s.doJSON(http.MethodPost, "/auth/register", map[string]interface{}{"name": "x", "email": "not-an-email", "password": "secret123"}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("me and login-json", func(t *testing.T) {
		user, token := s.login(model.RolePatron)
		rec := s.doJSON(http.MethodGet, "/auth/me", nil, token)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), user.Email)
		assert.NotContains(t, rec.Body.String(), "password")

		rec = s.doJSON(http.MethodPost, "/auth/login-json", map[string]string{"email": user.Email, "password": "wrong"}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing or bad token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, s.doJSON(http.MethodGet, "/auth/me", nil, "").Code)
		assert.Equal(t, http.StatusUnauthorized, s.doJSON(http.MethodGet, "/auth/me", nil, "garbage").Code)
	})

	t.Run("change password", func(t *testing.T) {
		_, token := s.login(model.RolePatron)
		rec := s.doJSON(http.MethodPut, "/auth/change-password", map[string]string{"current_password": "wrong", "new_password": "another123"}, token)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = s.doJSON(http.MethodPut, "/auth/change-password", map[string]string{"current_password": "secret123", "new_password": "another123"}, token)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("logout revokes the token", func(t *testing.T) {
		_, token := s.login(model.RolePatron)
		require.Equal(t, http.StatusOK, s.doJSON(http.MethodPost, "/auth/logout", nil, token).Code)
		assert.Equal(t, http.StatusUnauthorized, s.doJSON(http.MethodGet, "/auth/me", nil, token).Code)
	})

	t.Run("logout fails when revocation cannot be stored", func(t *testing.T) {
		_, token := s.login(model.RolePatron)
		s.tokens.unavailable = true
		t.Cleanup(func() { s.tokens.unavailable = false })

		rec := s.doJSON(http.MethodPost, "/auth/logout", nil, token)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("inactive user is rejected", func(t *testing.T) {
		user, token := s.login(model.RolePatron)
		require.NoError(t, s.db.Model(&model.User{}).Where("id = ?", user.ID).Update("active", false).Error)

		rec := s.doJSON(http.MethodGet, "/auth/me", nil, token)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		form := url.Values{"username": {user.Email}, "password": {"secret123"}}
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
		assert.Equal(t, http.StatusForbidden, s.do(req, "").Code)
	})
}

func TestBookRoutes(t *testing.T) {
	s := newTestServer(t)
	_, staff := s.login(model.RoleLibrarian)
	_, patron := s.login(model.RolePatron)

	t.Run("patrons cannot create books", func(t *testing.T) {
		rec := s.doMultipart(http.MethodPost, "/livros", bookFields("111"), "", nil, patron)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		rec = s.doMultipart(http.MethodPost, "/livros", bookFields("111"), "", nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("executable upload is rejected", func(t *testing.T) {
		rec := s.doMultipart(http.MethodPost, "/livros", bookFields("222"), "setup.exe", []byte("MZ"), staff)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "UNSUPPORTED_FILE_TYPE", decodeCode(t, rec))

		entries, err := os.ReadDir(s.covers.Dir())
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("cover lifecycle", func(t *testing.T) {
		rec := s.doMultipart(http.MethodPost, "/livros", bookFields("333"), "capa.png", []byte("png-bytes"), staff)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var book model.Book
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &book))
		require.NotNil(t, book.Cover)

		rec = s.do(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/livros/%d", book.ID), nil), "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), *book.Cover)

		coverPath := "/livros/capas/" + *book.Cover
		rec = s.do(httptest.NewRequest(http.MethodGet, coverPath, nil), "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "png-bytes", rec.Body.String())

		rec = s.doJSON(http.MethodDelete, fmt.Sprintf("/livros/%d", book.ID), nil, staff)
		require.Equal(t, http.StatusOK, rec.Code)

		assert.Equal(t, http.StatusNotFound, s.do(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/livros/%d", book.ID), nil), "").Code)
		assert.Equal(t, http.StatusNotFound, s.do(httptest.NewRequest(http.MethodGet, coverPath, nil), "").Code)
	})

	t.Run("duplicate isbn", func(t *testing.T) {
		require.Equal(t, http.StatusCreated, s.doMultipart(http.MethodPost, "/livros", bookFields("444"), "", nil, staff).Code)
		rec := s.doMultipart(http.MethodPost, "/livros", bookFields("444"), "", nil, staff)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("partial update honours empty values", func(t *testing.T) {
		rec := s.doMultipart(http.MethodPost, "/livros", bookFields("555"), "", nil, staff)
		require.Equal(t, http.StatusCreated, rec.Code)
		var book model.Book
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &book))

		rec = s.doMultipart(http.MethodPut, fmt.Sprintf("/livros/%d", book.ID), map[string]string{"description": "", "copies": "4"}, "", nil, staff)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated model.Book
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
		assert.Equal(t, "", updated.Description)
		assert.Equal(t, 4, updated.Copies)
		assert.Equal(t, book.Title, updated.Title)

		rec = s.doMultipart(http.MethodPut, fmt.Sprintf("/livros/%d", book.ID), map[string]string{"copies": "0"}, "", nil, staff)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("update rejects blank required fields", func(t *testing.T) {
		rec := s.doMultipart(http.MethodPost, "/livros", bookFields("556"), "", nil, staff)
		require.Equal(t, http.StatusCreated, rec.Code)
		var book model.Book
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &book))

		for _, fields := range []map[string]string{
			{"title": ""},
			{"author": ""},
			{"isbn": ""},
			{"category": ""},
			{"year": "0"},
			{"pages": "-1"},
		} {
			rec = s.doMultipart(http.MethodPut, fmt.Sprintf("/livros/%d", book.ID), fields, "", nil, staff)
			assert.Equal(t, http.StatusBadRequest, rec.Code, "%v", fields)
			assert.Equal(t, "VALIDATION_ERROR", decodeCode(t, rec), "%v", fields)
		}

		rec = s.do(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/livros/%d", book.ID), nil), "")
		require.Equal(t, http.StatusOK, rec.Code)
		var stored model.Book
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
		assert.Equal(t, book.Title, stored.Title)
		assert.Equal(t, book.ISBN, stored.ISBN)
		assert.Equal(t, book.Year, stored.Year)
	})

	t.Run("listing is public and paged", func(t *testing.T) {
		rec := s.do(httptest.NewRequest(http.MethodGet, "/livros/?skip=0&limit=1", nil), "")
		require.Equal(t, http.StatusOK, rec.Code)
		var books []model.Book
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &books))
		assert.Len(t, books, 1)
	})
}

func TestLoanRoutes(t *testing.T) {
	s := newTestServer(t)
	_, staff := s.login(model.RoleLibrarian)
	alice, aliceToken := s.login(model.RolePatron)
	bob, _ := s.login(model.RolePatron)
	book := testutil.CreateBook(t, s.db, 1)
	due := time.Now().Add(7 * 24 * time.Hour).UTC()

	createLoan := func(userID uint) *httptest.ResponseRecorder {
		return s.doJSON(http.MethodPost, "/emprestimos", map[string]interface{}{
			"user_id":            userID,
			"book_id":            book.ID,
			"expected_return_at": due,
		}, staff)
	}

	rec := s.doJSON(http.MethodPost, "/emprestimos", map[string]interface{}{
		"user_id": alice.ID, "book_id": book.ID, "expected_return_at": due,
	}, aliceToken)
	assert.Equal(t, http.StatusForbidden, rec.Code, "patrons cannot check out")

	rec = createLoan(alice.ID)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var loan model.Loan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loan))

	rec = createLoan(bob.ID)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NO_COPIES_AVAILABLE", decodeCode(t, rec))

	rec = createLoan(alice.ID)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_HOLDS_BOOK", decodeCode(t, rec))

	t.Run("copies cannot drop below active loans", func(t *testing.T) {
		shelf := testutil.CreateBook(t, s.db, 2)
		for i := 0; i < 2; i++ {
			reader := testutil.CreateUser(t, s.db, model.RolePatron)
			testutil.CreateLoan(t, s.db, reader.ID, shelf.ID, model.LoanStatusActive, due)
		}

		rec := s.doMultipart(http.MethodPut, fmt.Sprintf("/livros/%d", shelf.ID), map[string]string{"copies": "1"}, "", nil, staff)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "COPIES_BELOW_ACTIVE_LOANS", decodeCode(t, rec))
	})

	t.Run("patron sees only own loans", func(t *testing.T) {
		other := testutil.CreateBook(t, s.db, 1)
		testutil.CreateLoan(t, s.db, bob.ID, other.ID, model.LoanStatusActive, due)

		rec := s.doJSON(http.MethodGet, fmt.Sprintf("/emprestimos?usuario_id=%d", bob.ID), nil, aliceToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var rows []handler.LoanRow
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
		require.Len(t, rows, 1)
		assert.Equal(t, alice.ID, rows[0].UserID)
		assert.Equal(t, book.Title, rows[0].BookTitle)
		assert.Equal(t, alice.Name, rows[0].UserName)

		rec = s.doJSON(http.MethodGet, fmt.Sprintf("/emprestimos/usuario/%d", bob.ID), nil, aliceToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("overdue listing", func(t *testing.T) {
		late := testutil.CreateBook(t, s.db, 1)
		overdue := testutil.CreateLoan(t, s.db, bob.ID, late.ID, model.LoanStatusActive, time.Now().Add(-24*time.Hour))

		rec := s.doJSON(http.MethodGet, "/emprestimos/atrasados/", nil, staff)
		require.Equal(t, http.StatusOK, rec.Code)
		var rows []service.OverdueLoan
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
		require.Len(t, rows, 1)
		assert.Equal(t, overdue.ID, rows[0].ID)
		assert.Equal(t, 1, rows[0].DaysOverdue)

		assert.Equal(t, http.StatusForbidden, s.doJSON(http.MethodGet, "/emprestimos/atrasados/", nil, aliceToken).Code)
	})

	t.Run("return twice", func(t *testing.T) {
		path := fmt.Sprintf("/emprestimos/%d/devolver", loan.ID)
		rec := s.doJSON(http.MethodPut, path, nil, staff)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = s.doJSON(http.MethodPut, path, nil, staff)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "LOAN_ALREADY_RETURNED", decodeCode(t, rec))
	})

	t.Run("update and delete", func(t *testing.T) {
		path := fmt.Sprintf("/emprestimos/%d", loan.ID)
		rec := s.doJSON(http.MethodPut, path, map[string]string{"status": "active"}, staff)
		assert.Equal(t, http.StatusConflict, rec.Code)

		rec = s.doJSON(http.MethodGet, path, nil, aliceToken)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = s.doJSON(http.MethodDelete, path, nil, staff)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, http.StatusNotFound, s.doJSON(http.MethodGet, path, nil, staff).Code)
	})
}

func TestUserRoutes(t *testing.T) {
	s := newTestServer(t)
	_, adminToken := s.login(model.RoleAdmin)
	_, staff := s.login(model.RoleLibrarian)
	patron, _ := s.login(model.RolePatron)

	assert.Equal(t, http.StatusForbidden, s.doJSON(http.MethodGet, "/usuarios", nil, staff).Code)

	rec := s.doJSON(http.MethodGet, "/usuarios", nil, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var users []model.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	assert.Len(t, users, 3)

	rec = s.doJSON(http.MethodPut, fmt.Sprintf("/usuarios/%d", patron.ID), map[string]interface{}{"role": "librarian"}, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated model.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, model.RoleLibrarian, updated.Role)

	rec = s.doJSON(http.MethodPut, fmt.Sprintf("/usuarios/%d", patron.ID), map[string]interface{}{"role": "owner"}, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusNotFound, s.doJSON(http.MethodGet, "/usuarios/9999", nil, adminToken).Code)
}
