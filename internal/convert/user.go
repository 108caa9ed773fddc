// Package convert maps domain entities to and from their JSON wire form.
package convert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/and161185/goph-auth/internal/errs"
	"github.com/and161185/goph-auth/internal/model"
	"github.com/and161185/goph-auth/internal/service"
)

const dateLayout = "2006-01-02"

// UserView is the public representation of a user. Empty fields are omitted.
type UserView struct {
	ID       string    `json:"id"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
	Email    string    `json:"email,omitempty"`
	Name     string    `json:"name,omitempty"`
	URL      string    `json:"url,omitempty"`
	Bio      string    `json:"bio,omitempty"`
	Born     string    `json:"born,omitempty"`
	Gender   string    `json:"gender,omitempty"`
}

// UserList wraps a collection response.
type UserList struct {
	Objects []UserView `json:"objects"`
}

// ToUserView converts a domain user to its wire form.
func ToUserView(u model.User) UserView {
	v := UserView{
		ID:       u.Username,
		Created:  u.CreatedAt.UTC(),
		Modified: u.ModifiedAt.UTC(),
		Email:    u.Email,
		Name:     u.Name,
		URL:      u.URL,
		Bio:      u.Bio,
		Gender:   string(u.Gender),
	}
	if u.Born != nil {
		v.Born = u.Born.UTC().Format(dateLayout)
	}
	return v
}

// ToUserList converts users in order.
func ToUserList(users []model.User) UserList {
	out := UserList{Objects: make([]UserView, 0, len(users))}
	for _, u := range users {
		out.Objects = append(out.Objects, ToUserView(u))
	}
	return out
}

type userInput struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Username *string `json:"username"`
	Name     *string `json:"name"`
	URL      *string `json:"url"`
	Bio      *string `json:"bio"`
	Born     *string `json:"born"`
	Gender   *string `json:"gender"`
	Role     *string `json:"role"`
}

func decodeUserInput(body []byte) (userInput, error) {
	var in userInput
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return userInput{}, fmt.Errorf("invalid user payload: %v: %w", err, errs.ErrBadRequest)
	}
	return in, nil
}

// ParseBorn accepts RFC 3339 timestamps and plain dates.
func ParseBorn(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("born must be a date (YYYY-MM-DD) or RFC 3339 time: %w", errs.ErrBadRequest)
	}
	return t, nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// NewUserFromJSON decodes a create request body.
func NewUserFromJSON(body []byte) (service.NewUser, error) {
	in, err := decodeUserInput(body)
	if err != nil {
		return service.NewUser{}, err
	}
	out := service.NewUser{
		Email:    deref(in.Email),
		Password: deref(in.Password),
		Username: deref(in.Username),
		Name:     deref(in.Name),
		URL:      deref(in.URL),
		Bio:      deref(in.Bio),
		Gender:   model.Gender(deref(in.Gender)),
		Role:     model.Role(deref(in.Role)),
	}
	if in.Born != nil && *in.Born != "" {
		born, err := ParseBorn(*in.Born)
		if err != nil {
			return service.NewUser{}, err
		}
		out.Born = &born
	}
	return out, nil
}

// UserPatchFromJSON decodes an update request body. Identity fields are
// immutable and rejected.
func UserPatchFromJSON(body []byte) (service.UserPatch, error) {
	in, err := decodeUserInput(body)
	if err != nil {
		return service.UserPatch{}, err
	}
	if in.Email != nil || in.Username != nil || in.Role != nil {
		return service.UserPatch{}, fmt.Errorf("email, username and role cannot be updated: %w", errs.ErrBadRequest)
	}
	out := service.UserPatch{Password: in.Password, Name: in.Name, URL: in.URL, Bio: in.Bio}
	if in.Gender != nil {
		g := model.Gender(*in.Gender)
		out.Gender = &g
	}
	if in.Born != nil {
		born, err := ParseBorn(*in.Born)
		if err != nil {
			return service.UserPatch{}, err
		}
		out.Born = &born
	}
	return out, nil
}
