package echoapi

import (
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/user"
)

const tokenContextKey = "userToken"

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Email        string `json:"email,omitempty"`
	Name         string `json:"name,omitempty"`
	Role         string `json:"role,omitempty"`
}

// UserID parses the subject claim.
func (c Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

type authenticator struct {
	issuer                 string
	signingKey             []byte
	expirationDelta        time.Duration
	refreshExpirationDelta time.Duration
}

func newAuthenticator(conf *core.Config) *authenticator {
	return &authenticator{
		issuer:                 conf.AppName,
		signingKey:             []byte(conf.SecretKey),
		expirationDelta:        conf.Server.JWTExpirationDelta,
		refreshExpirationDelta: conf.Server.JWTRefreshExpirationDelta,
	}
}

// middleware returns the JWT auth middleware; the parsed token is stored under tokenContextKey.
func (a *authenticator) middleware() echo.MiddlewareFunc {
	return middleware.JWTWithConfig(middleware.JWTConfig{
		SigningKey:    a.signingKey,
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    tokenContextKey,
		Claims:        new(Claims),
	})
}

func (a *authenticator) userClaims(usr user.User, origIat ...int64) *Claims {
	now := core.NowFunc()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.issuer,
			Subject:   strconv.FormatInt(usr.ID, 10),
			ExpiresAt: now.Add(a.expirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Email:        usr.Email,
		Name:         usr.Name,
		Role:         usr.Role,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func (a *authenticator) GenerateToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString(a.signingKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (a *authenticator) tokenFor(usr user.User) (string, error) {
	return a.GenerateToken(a.userClaims(usr))
}

func (a *authenticator) refreshToken(ctx echo.Context, svc user.Service) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}
	id, err := claims.UserID()
	if err != nil {
		return "", errUnauthorized
	}

	usr, err := svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return "", errUnauthorized
		}
		return "", errors.Wrap(err, "finding user by ID")
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.refreshExpirationDelta)
	if core.NowFunc().After(expTime) {
		return "", errRefreshExpired
	}

	token, err := a.GenerateToken(a.userClaims(usr, claims.OrigIssuedAt))
	return token, errors.Wrap(err, "generating token")
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// contextUserID returns the ID of the authenticated user.
func contextUserID(ctx echo.Context) (int64, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return 0, err
	}
	id, err := claims.UserID()
	if err != nil {
		return 0, errUnauthorized
	}
	return id, nil
}
