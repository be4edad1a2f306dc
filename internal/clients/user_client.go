// Package clients holds thin clients for the external collaborators
// this service consumes: identity and profile data are owned by the
// user service and only read here.
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// UserProfile is the peer display info used to hydrate chat tabs.
type UserProfile struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	Avatar            string `json:"avatar"`
	AvatarCroppedArea string `json:"avatarCroppedArea,omitempty"`
}

// UserDirectory abstracts the user-service lookups.
type UserDirectory interface {
	GetUser(ctx context.Context, userID int) (UserProfile, error)
	BulkUsers(ctx context.Context, userIDs []int) ([]UserProfile, error)
}

var ErrUserNotFound = errors.New("user not found")

// UserClient talks to the user service over its internal REST API.
type UserClient struct {
	baseURL string
	http    *http.Client
}

// NewUserClient constructs the client.
func NewUserClient(baseURL string) *UserClient {
	return &UserClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// GetUser retrieves one user's profile.
func (u *UserClient) GetUser(ctx context.Context, userID int) (UserProfile, error) {
	var profile UserProfile
	err := u.get(ctx, fmt.Sprintf("%s/internal/users/%d", u.baseURL, userID), &profile)
	if err != nil {
		return UserProfile{}, err
	}
	if profile.ID == 0 {
		return UserProfile{}, ErrUserNotFound
	}
	return profile, nil
}

// BulkUsers fetches multiple profiles in one call.
func (u *UserClient) BulkUsers(ctx context.Context, userIDs []int) ([]UserProfile, error) {
	if len(userIDs) == 0 {
		return []UserProfile{}, nil
	}

	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		ids = append(ids, strconv.Itoa(id))
	}
	endpoint := fmt.Sprintf("%s/internal/users?ids=%s", u.baseURL, url.QueryEscape(strings.Join(ids, ",")))

	var result struct {
		Users []UserProfile `json:"users"`
	}
	if err := u.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	return result.Users, nil
}

func (u *UserClient) get(ctx context.Context, endpoint string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := u.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrUserNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("user service returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
