package user

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/kazi/core"
)

// Roles
const (
	RoleHost    = "host"    // creates subjects
	RoleStudent = "student" // joins subjects & teams
)

var AllRoles = []string{RoleStudent, RoleHost}

type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Role         string     `json:"role"`
	PasswordHash []byte     `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`           // UTC
	UpdatedAt    time.Time  `json:"updatedAt"`           // UTC
	LastLogin    *time.Time `json:"lastLogin,omitempty"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsHost() bool    { return u.Role == RoleHost }
func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// Ref is the public projection of a User embedded in other payloads.
type Ref struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// NewUser contains information needed to register a new User.
type NewUser struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName"`
	Password  string `json:"password" validate:"required"`
	Role      string `json:"role" validate:"omitempty,oneof=host student"`
}

func (nu *NewUser) Name() string {
	return strings.TrimSpace(nu.FirstName + " " + nu.LastName)
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	if nu.Role == "" {
		nu.Role = RoleStudent
	}
	return validate.Struct(nu)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }
