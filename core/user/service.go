package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

var (
	// errors
	ErrNotFound           = core.NewError(core.KindNotFound, "User not found")
	ErrDuplicateUser      = core.NewError(core.KindDuplicateUser, "User already exists")
	ErrInvalidCredentials = core.NewError(core.KindInvalidCredentials, "Invalid credentials")
	ErrInvalidToken       = core.NewError(core.KindInvalidToken, "Invalid token")
)

type (
	Repository interface {
		// CreateUser fails with ErrDuplicateUser when the email is taken.
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	Service struct {
		repo     Repository
		tokens   *TokenIssuer
		mailSvc  core.EmailService
		validate *validator.Validate
	}
)

func NewService(
	repo Repository,
	mailSvc core.EmailService,
	validate *validator.Validate,
	conf *core.Config,
) *Service {
	return &Service{
		repo:     repo,
		tokens:   NewTokenIssuer(conf),
		mailSvc:  mailSvc,
		validate: validate,
	}
}

func (svc *Service) Tokens() *TokenIssuer { return svc.tokens }

func (svc *Service) newSession(usr User) (Session, error) {
	token, err := svc.tokens.Issue(usr)
	if err != nil {
		return Session{}, errors.Wrap(err, "issuing token")
	}
	return Session{Token: token, User: usr}, nil
}

// Register creates a learner (by default) or instructor account and logs it in.
func (svc *Service) Register(ctx context.Context, nu NewUser) (Session, error) {
	nu.Clean()
	if err := svc.validate.Struct(nu); err != nil {
		return Session{}, err
	}

	now := time.Now().UTC()
	usr := User{
		Email:     nu.Email,
		Role:      nu.Role,
		Name:      nu.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return Session{}, errors.Wrap(err, "hashing password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return Session{}, errors.Wrap(err, "creating user")
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Welcome!",
		TemplateName: "welcome",
		TemplateData: usr,
	})
	return svc.newSession(usr)
}

// Login checks the credentials and issues a new token.
// An unknown email and a wrong password are indistinguishable to the caller.
func (svc *Service) Login(ctx context.Context, creds Credentials) (Session, error) {
	if err := svc.validate.Struct(creds); err != nil {
		return Session{}, err
	}
	usr, err := svc.repo.GetUserByEmail(ctx, core.CleanString(creds.Email, true /* lower */))
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(creds.Password); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	return svc.newSession(usr)
}

// Authenticate resolves a token to its Principal.
func (svc *Service) Authenticate(token string) (Principal, error) {
	return svc.tokens.Verify(token)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) UpdateProfile(ctx context.Context, id string, up UpdateProfile) (User, error) {
	up.Clean()
	if err := svc.validate.Struct(up); err != nil {
		return User{}, err
	}
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, errors.Wrap(err, "finding user by ID")
	}
	if up.Name != nil {
		usr.Name = *up.Name
	}
	if up.Bio != nil {
		usr.Bio = *up.Bio
	}
	if up.Avatar != nil {
		usr.Avatar = *up.Avatar
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// ResetPassword sets a new password, enforcing the password policy.
func (svc *Service) ResetPassword(ctx context.Context, email, pwd string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return errors.Wrap(err, "finding user by email")
	}
	if err = ValidatePassword(pwd, usr.Email, usr.Name); err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}

// ValidatePassword returns a ValidationError on "password" when pwd breaks the password policy.
func ValidatePassword(pwd string, attrs ...string) error {
	if tag := PasswordPolicyViolation(pwd, attrs...); tag != "" {
		return core.NewValidationError(nil, core.FieldError{Field: "password", Error: policyText(tag)})
	}
	return nil
}

func policyText(tag string) string {
	switch tag {
	case pwdMinLenTag:
		return pwdMinLenText
	case pwdNoSpaceTag:
		return pwdNoSpaceText
	case pwdNotAllNumTag:
		return pwdNotAllNumText
	case pwdAttrSimTag:
		return pwdAttrSimText
	}
	return tag
}
