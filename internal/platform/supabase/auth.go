package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	adminUsersPath = "/auth/v1/admin/users"
	usersPageSize  = 200
)

// User is the subset of a GoTrue user the tools care about.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// CreateUserParams mirrors the admin create-user payload.
type CreateUserParams struct {
	Email        string         `json:"email"`
	Password     string         `json:"password"`
	EmailConfirm bool           `json:"email_confirm"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// CreateUser registers a new identity through the admin API.
func (c *Client) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	var user User
	if err := c.do(ctx, request{method: http.MethodPost, path: adminUsersPath, body: params}, &user); err != nil {
		return User{}, err
	}
	if err := checkUser(user); err != nil {
		return User{}, err
	}
	return user, nil
}

// GetUser fetches an identity by id. Missing users yield ErrNotFound.
func (c *Client) GetUser(ctx context.Context, id string) (User, error) {
	var user User
	path := adminUsersPath + "/" + url.PathEscape(id)
	if err := c.do(ctx, request{method: http.MethodGet, path: path}, &user); err != nil {
		return User{}, err
	}
	if err := checkUser(user); err != nil {
		return User{}, err
	}
	return user, nil
}

type listUsersResponse struct {
	Users []User `json:"users"`
}

// FindUserByEmail pages through the admin user list until an exact
// (case-insensitive) email match is found.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (User, error) {
	want := strings.ToLower(strings.TrimSpace(email))
	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("email", want)
		query.Set("page", strconv.Itoa(page))
		query.Set("per_page", strconv.Itoa(usersPageSize))
		var resp listUsersResponse
		if err := c.do(ctx, request{method: http.MethodGet, path: adminUsersPath, query: query}, &resp); err != nil {
			return User{}, err
		}
		for _, user := range resp.Users {
			if strings.ToLower(user.Email) == want {
				if err := checkUser(user); err != nil {
					return User{}, err
				}
				return user, nil
			}
		}
		if len(resp.Users) < usersPageSize {
			return User{}, fmt.Errorf("%w: user %s", ErrNotFound, email)
		}
	}
}

// DeleteUser removes an identity.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	path := adminUsersPath + "/" + url.PathEscape(id)
	return c.do(ctx, request{method: http.MethodDelete, path: path}, nil)
}

func checkUser(user User) error {
	if _, err := uuid.Parse(user.ID); err != nil {
		return fmt.Errorf("%w: user id %q: %v", ErrMalformedResponse, user.ID, err)
	}
	return nil
}
