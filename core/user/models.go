package user

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/academia/core"
)

// Roles
const (
	RoleLearner    Role = "learner"
	RoleInstructor Role = "instructor"
)

// Capabilities
const (
	CapManageCourses Capability = iota + 1
	CapEnroll
	CapTakeQuiz
)

var (
	Roles = []Role{RoleLearner, RoleInstructor}

	roleCapabilities = map[Role][]Capability{
		RoleLearner:    {CapEnroll, CapTakeQuiz},
		RoleInstructor: {CapManageCourses, CapEnroll, CapTakeQuiz},
	}
)

type (
	Role       string
	Capability int
)

func ParseRole(s string) (Role, bool) {
	r := Role(core.CleanString(s, true /* lower */))
	_, ok := roleCapabilities[r]
	return r, ok
}

func (r Role) String() string { return string(r) }

// Can reports whether the role grants the capability.
func (r Role) Can(c Capability) bool {
	for _, granted := range roleCapabilities[r] {
		if granted == c {
			return true
		}
	}
	return false
}

// Principal is the authenticated caller resolved from a token.
type Principal struct {
	UserID string
	Role   Role
}

func (p Principal) Can(c Capability) bool { return p.Role.Can(c) }

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	Role         Role      `json:"role"`
	Name         string    `json:"name"`
	Bio          string    `json:"bio"`
	Avatar       string    `json:"avatar"`
	CreatedAt    time.Time `json:"createdAt"` // UTC
	UpdatedAt    time.Time `json:"updatedAt"` // UTC
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

func (u User) Principal() Principal {
	return Principal{UserID: u.ID, Role: u.Role}
}

// NewUser contains information needed to register a new User.
type NewUser struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     Role   `json:"role" validate:"omitempty,role"`
	Name     string `json:"name"`
}

func (nu *NewUser) Clean() {
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Name = core.CleanString(nu.Name)
	nu.Role = Role(core.CleanString(string(nu.Role), true /* lower */))
	if nu.Role == "" {
		nu.Role = RoleLearner
	}
	if nu.Name == "" {
		nu.Name = strings.SplitN(nu.Email, "@", 2)[0]
	}
}

// UpdateProfile defines what information may be provided to modify a User's profile.
type UpdateProfile struct {
	Name   *string `json:"name" validate:"omitempty,notblank,max=100"`
	Bio    *string `json:"bio" validate:"omitempty,max=2000"`
	Avatar *string `json:"avatar" validate:"omitempty,max=2048"`
}

func (up *UpdateProfile) Clean() {
	for _, s := range []*string{up.Name, up.Bio, up.Avatar} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
}

// Credentials is a login request.
type Credentials struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Session is returned on register and login.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
