package user

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("user not found")
	ErrEmailExists        = core.NewConflictError("a user with this email already exists")
	ErrInvalidCredentials = core.NewUnauthorizedError("invalid credentials")
	ErrInvalidResetLink   = core.NewBadRequestError("the password reset link is invalid or has expired")
)

type (
	// GetFilter looks a single User up by ID or by Email; the first non-zero field wins.
	GetFilter struct {
		ID    int64
		Email string
	}

	Repository interface {
		// CreateUser returns ErrEmailExists when the email is already taken.
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	Service interface {
		Register(ctx context.Context, nu NewUser) (User, error)
		Authenticate(ctx context.Context, email, pwd string) (User, error)
		GetByID(ctx context.Context, id int64) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		// CreateHost creates a host account, or promotes and resets the password of an existing one.
		CreateHost(ctx context.Context, email, name, pwd string) (User, error)
		SetPassword(ctx context.Context, email, pwd string) error
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
	}

	service struct {
		repo            Repository
		mailSvc         core.EmailService
		tokens          TokenGenerator
		frontendBaseURL string
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		repo:            repo,
		mailSvc:         mailSvc,
		tokens:          NewTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
		frontendBaseURL: conf.FrontendBaseURL,
	}
}

func (svc *service) Register(ctx context.Context, nu NewUser) (User, error) {
	role := nu.Role
	if role == "" {
		role = RoleStudent
	}
	now := core.NowFunc().UTC()
	usr := User{
		Email:     core.CleanString(nu.Email, true /* lower */),
		Name:      nu.Name(),
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}

	now := core.NowFunc().UTC()
	usr.LastLogin = &now
	usr, err = svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "setting lastLogin")
	}
	return usr, nil
}

func (svc *service) GetByID(ctx context.Context, id int64) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	email = core.CleanString(email, true /* lower */)
	if email == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{Email: email})
}

func (svc *service) CreateHost(ctx context.Context, email, name, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	switch {
	case err == nil:
		usr.Role = RoleHost
		if name = core.CleanString(name); name != "" {
			usr.Name = name
		}
		if err := usr.SetPassword(pwd); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
		usr.UpdatedAt = core.NowFunc().UTC()
		return svc.repo.UpdateUser(ctx, usr)
	case errors.Cause(err) == ErrNotFound:
		return svc.Register(ctx, NewUser{
			Email:     email,
			FirstName: core.CleanString(name),
			Password:  pwd,
			Role:      RoleHost,
		})
	default:
		return User{}, err
	}
}

func (svc *service) SetPassword(ctx context.Context, email, pwd string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	return svc.setPassword(ctx, usr, pwd)
}

func (svc *service) setPassword(ctx context.Context, usr User, pwd string) error {
	if err := usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = core.NowFunc().UTC()
	if _, err := svc.repo.UpdateUser(ctx, usr); err != nil {
		return errors.Wrap(err, "updating user")
	}
	return nil
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	token, err := svc.tokens.MakeToken(usr)
	if err != nil {
		return errors.Wrap(err, "making token")
	}
	query := url.Values{}
	query.Set("uid", EncodeUID(usr))
	query.Set("token", token)

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name": usr.Name,
			"URL":  fmt.Sprintf("%s/password-reset/confirm?%s", svc.frontendBaseURL, query.Encode()),
		},
	})
	return nil
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	id, err := DecodeUID(data.UID)
	if err != nil {
		return ErrInvalidResetLink
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return ErrInvalidResetLink
		}
		return err
	}
	if err := svc.tokens.verifyToken(usr, data.Token); err != nil {
		return ErrInvalidResetLink
	}
	return svc.setPassword(ctx, usr, data.Password)
}
