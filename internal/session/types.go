package session

import (
	"errors"

	"github.com/example/ec-storefront/internal/auth"
)

// Address is a saved shipping address.
type Address struct {
	ID        string `json:"_id,omitempty"`
	Label     string `json:"label,omitempty"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state,omitempty"`
	ZipCode   string `json:"zipCode"`
	Country   string `json:"country"`
	IsDefault bool   `json:"isDefault"`
}

// Validate checks the fields the address form requires.
func (a Address) Validate() error {
	if a.Street == "" || a.City == "" || a.ZipCode == "" || a.Country == "" {
		return errors.New("street, city, zip code and country are required")
	}
	return nil
}

// User is the identity document returned by the auth and users endpoints.
type User struct {
	ID              string    `json:"_id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone,omitempty"`
	Role            string    `json:"role"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	Addresses       []Address `json:"addresses,omitempty"`
	Avatar          string    `json:"avatar,omitempty"`
}

func (u *User) validate() error {
	if u == nil {
		return errors.New("user missing")
	}
	if u.ID == "" {
		return errors.New("user id missing")
	}
	return nil
}

// Session is the client's authentication state. The zero value is the
// unauthenticated session.
type Session struct {
	UserID        string
	Email         string
	Name          string
	Phone         string
	Role          string
	Authenticated bool
	EmailVerified bool
	Addresses     []Address
	// Avatar is the URL of the uploaded profile picture, if any.
	Avatar string
}

func fromUser(u *User) Session {
	role := u.Role
	if role == "" {
		role = auth.RoleUser
	}
	return Session{
		UserID:        u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Phone:         u.Phone,
		Role:          role,
		Authenticated: true,
		EmailVerified: u.IsEmailVerified,
		Addresses:     append([]Address(nil), u.Addresses...),
		Avatar:        u.Avatar,
	}
}

// IsAdmin reports whether the session belongs to an administrator.
func (s Session) IsAdmin() bool {
	return s.Authenticated && s.Role == auth.RoleAdmin
}

func (s Session) clone() Session {
	s.Addresses = append([]Address(nil), s.Addresses...)
	return s
}

// Credentials is the login form.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c Credentials) Validate() error {
	if c.Email == "" {
		return auth.ErrEmailRequired
	}
	if c.Password == "" {
		return auth.ErrPasswordRequired
	}
	return nil
}

// Registration is the sign-up form.
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r Registration) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if err := auth.ValidateEmail(r.Email); err != nil {
		return err
	}
	return auth.ValidatePassword(r.Password)
}

// ProfileUpdate is the editable part of the profile.
type ProfileUpdate struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type authPayload struct {
	User         *User  `json:"user"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

func (p *authPayload) Validate() error {
	if p.Token == "" {
		return errors.New("token missing")
	}
	return p.User.validate()
}

type tokenPayload struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

func (p *tokenPayload) Validate() error {
	if p.Token == "" {
		return errors.New("token missing")
	}
	return nil
}

type userPayload struct {
	User *User `json:"user"`
}

func (p *userPayload) Validate() error {
	return p.User.validate()
}

type addressesPayload struct {
	Addresses []Address `json:"addresses"`
}

func (p *addressesPayload) Validate() error {
	if p.Addresses == nil {
		return errors.New("addresses missing")
	}
	return nil
}
