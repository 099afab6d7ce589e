package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testUserID = "3f2b8c1e-6a0d-4c4e-9f1a-2b7d5e8c9a10"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "service-key", time.Second)
}

func TestCreateUserSendsServiceCredentials(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/auth/v1/admin/users", r.URL.Path)
		require.Equal(t, "service-key", r.Header.Get("apikey"))
		require.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))

		var params CreateUserParams
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		require.Equal(t, "hany@modeer.com", params.Email)
		require.True(t, params.EmailConfirm)

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"` + testUserID + `","email":"hany@modeer.com"}`))
	})

	user, err := client.CreateUser(context.Background(), CreateUserParams{Email: "hany@modeer.com", Password: "secret", EmailConfirm: true})
	require.NoError(t, err)
	require.Equal(t, testUserID, user.ID)
}

func TestCreateUserRejectsMalformedID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"not-a-uuid"}`))
	})

	_, err := client.CreateUser(context.Background(), CreateUserParams{Email: "x@y.z"})
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestAPIErrorKeepsRawBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":422,"error_code":"email_exists","msg":"A user with this email address has already been registered"}`))
	})

	_, err := client.CreateUser(context.Background(), CreateUserParams{Email: "x@y.z"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	require.Equal(t, "email_exists", apiErr.Code)
	require.Contains(t, apiErr.Message, "already been registered")
	require.Contains(t, err.Error(), "email_exists")
	require.False(t, errors.Is(err, ErrDuplicate))
}

func TestInsertDuplicateMatchesByCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/v1/employees", r.URL.Path)
		require.Equal(t, "return=representation", r.Header.Get("Prefer"))
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint \"employees_user_id_key\"","details":"Key (user_id) already exists.","hint":null}`))
	})

	var rows []map[string]any
	err := client.Insert(context.Background(), "employees", map[string]any{"user_id": testUserID}, &rows)
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestConflictWithoutUniqueCodeIsNotDuplicate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23503","message":"insert or update violates foreign key constraint"}`))
	})

	err := client.Insert(context.Background(), "employees", map[string]any{}, nil)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrDuplicate))
}

func TestSelectEncodesFilters(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "eq.type-1", q.Get("employee_type_id"))
		require.Equal(t, "employee_code", q.Get("select"))
		require.Equal(t, "employee_code.desc", q.Get("order"))
		require.Equal(t, "1", q.Get("limit"))
		_, _ = w.Write([]byte(`[{"employee_code":"2010001"}]`))
	})

	var rows []struct {
		EmployeeCode string `json:"employee_code"`
	}
	q := NewQuery().Select("employee_code").Eq("employee_type_id", "type-1").Order("employee_code", true).Limit(1)
	require.NoError(t, client.Select(context.Background(), "employees", q, &rows))
	require.Len(t, rows, 1)
	require.Equal(t, "2010001", rows[0].EmployeeCode)
}

func TestFindUserByEmailMatchesExactly(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "1", r.URL.Query().Get("page"))
		_, _ = w.Write([]byte(`{"users":[{"id":"` + testUserID + `","email":"nermin.elashkar@modeer.com"}]}`))
	})

	user, err := client.FindUserByEmail(context.Background(), "Nermin.Elashkar@modeer.com")
	require.NoError(t, err)
	require.Equal(t, testUserID, user.ID)

	_, err = client.FindUserByEmail(context.Background(), "someone@modeer.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetUserNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":404,"error_code":"user_not_found","msg":"User not found"}`))
	})

	_, err := client.GetUser(context.Background(), testUserID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMalformedJSONBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>gateway</html>`))
	})

	var rows []map[string]any
	err := client.Select(context.Background(), "employee_types", NewQuery(), &rows)
	require.ErrorIs(t, err, ErrMalformedResponse)
}
