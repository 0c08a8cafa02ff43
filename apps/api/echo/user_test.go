package echoapi

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kazi/core/user"
)

func Test_userAPI_register(t *testing.T) {
	env := setup(t)

	body := func(email, firstName, pwd, role string) []byte {
		return marshallObj(t, user.NewUser{Email: email, FirstName: firstName, LastName: "Doe", Password: pwd, Role: role})
	}

	t.Run("validation errors", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/auth/register", body("", "", testPassword, ""))
		env.serve(req, rec)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var fldErrs map[string]string
		unmarshallRec(t, rec, &fldErrs)
		assert.Equal(t, "this field is required", fldErrs["email"])
		assert.Equal(t, "this field is required", fldErrs["firstName"])
	})

	t.Run("weak password", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/auth/register", body("weak@test.cd", "Weak", "password", ""))
		env.serve(req, rec)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var fldErrs map[string]string
		unmarshallRec(t, rec, &fldErrs)
		assert.Contains(t, fldErrs, "password")
	})

	t.Run("unknown role", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/auth/register", body("admin@test.cd", "Admin", testPassword, "admin"))
		env.serve(req, rec)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("student by default", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/auth/register", body(" Alice@Test.cd ", "Alice", testPassword, ""))
		env.serve(req, rec)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var res AuthResponse
		unmarshallRec(t, rec, &res)
		assert.NotEmpty(t, res.AccessToken)
		assert.Equal(t, "alice@test.cd", res.User.Email)
		assert.Equal(t, "Alice Doe", res.User.Name)
		assert.Equal(t, user.RoleStudent, res.User.Role)
	})

	t.Run("host", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/auth/register", body("bob@test.cd", "Bob", testPassword, "HOST"))
		env.serve(req, rec)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var res AuthResponse
		unmarshallRec(t, rec, &res)
		assert.Equal(t, user.RoleHost, res.User.Role)
	})

	t.Run("duplicate email", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/auth/register", body("alice@test.cd", "Alice", testPassword, ""))
		env.serve(req, rec)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusConflict,
			wantData: marshallObj(t, httpErr{Error: user.ErrEmailExists.Message}),
		}, rec)
	})
}

func Test_userAPI_login(t *testing.T) {
	env := setup(t)
	usr := env.createUserWithPassword(t, "Alice Doe", "alice@test.cd")

	invalid := marshallObj(t, httpErr{Error: user.ErrInvalidCredentials.Message})
	runHTTPTests(t, env, []httpTest{
		{
			name: "missing fields", method: http.MethodPost, path: "/auth/login",
			body:     marshallObj(t, LoginRequest{}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"email": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown email", method: http.MethodPost, path: "/auth/login",
			body:     marshallObj(t, LoginRequest{Email: "nobody@test.cd", Password: testPassword}),
			wantCode: http.StatusUnauthorized, wantData: invalid,
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/auth/login",
			body:     marshallObj(t, LoginRequest{Email: usr.Email, Password: "Wr0ng!pass"}),
			wantCode: http.StatusUnauthorized, wantData: invalid,
		},
	})

	t.Run("logged in", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/auth/login", marshallObj(t, LoginRequest{Email: "ALICE@test.cd", Password: testPassword}))
		env.serve(req, rec)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res AuthResponse
		unmarshallRec(t, rec, &res)
		assert.Equal(t, UserPayload{ID: usr.ID, Email: usr.Email, Name: usr.Name, Role: usr.Role}, res.User)

		// the token authenticates the user
		req, rec = newAuthRequest(http.MethodGet, "/auth/me", res.AccessToken)
		env.serve(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func Test_userAPI_me(t *testing.T) {
	env := setup(t)
	usr := env.createUser(t, "Alice Doe", "alice@test.cd", user.RoleHost)

	runHTTPTests(t, env, []httpTest{
		{name: "Auth required", path: "/auth/me", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{name: "invalid token", path: "/auth/me", token: "not.a.jwt", wantCode: http.StatusUnauthorized},
		{
			name: "current user", path: "/auth/me", token: env.token(t, usr),
			wantData: marshallObj(t, MeResponse{UserID: usr.ID, Email: usr.Email, Name: usr.Name, Role: user.RoleHost}),
		},
	})
}

func Test_userAPI_refreshToken(t *testing.T) {
	env := setup(t)
	usr := env.createUser(t, "Alice Doe", "alice@test.cd", user.RoleStudent)

	now := time.Now()
	unrefreshableClaims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    env.conf.AppName,
			Subject:   strconv.FormatInt(usr.ID, 10),
			ExpiresAt: now.Add(env.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: now.Add(-2 * env.conf.Server.JWTRefreshExpirationDelta).Unix(), // older than threshold
		Email:        usr.Email,
		Name:         usr.Name,
		Role:         usr.Role,
	}
	unrefreshableToken, err := env.auth.GenerateToken(unrefreshableClaims)
	require.NoError(t, err)

	ghost := user.User{ID: usr.ID + 100, Email: "ghost@test.cd", Name: "Ghost", Role: user.RoleStudent}

	runHTTPTests(t, env, []httpTest{
		{name: "Auth required", method: http.MethodPost, path: "/auth/token-refresh", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "Unknown user", method: http.MethodPost, path: "/auth/token-refresh", token: env.token(t, ghost),
			wantCode: http.StatusUnauthorized, wantData: marshallObj(t, httpErr{Error: "user not authenticated"}),
		},
		{
			name: "Refresh period expired", method: http.MethodPost, path: "/auth/token-refresh", token: unrefreshableToken,
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "refresh has expired"}),
		},
	})

	t.Run("Token refreshed", func(t *testing.T) {
		claims := env.auth.userClaims(usr, now.Add(-time.Hour).Unix())
		token, err := env.auth.GenerateToken(claims)
		require.NoError(t, err)

		req, rec := newAuthRequest(http.MethodPost, "/auth/token-refresh", token)
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res TokenResponse
		unmarshallRec(t, rec, &res)
		parsed, err := jwt.ParseWithClaims(res.AccessToken, new(Claims), func(*jwt.Token) (interface{}, error) {
			return env.auth.signingKey, nil
		})
		require.NoError(t, err)
		newClaims := parsed.Claims.(*Claims)
		assert.Equal(t, claims.OrigIssuedAt, newClaims.OrigIssuedAt)
		assert.Equal(t, strconv.FormatInt(usr.ID, 10), newClaims.Subject)
	})
}

func Test_userAPI_passwordReset(t *testing.T) {
	env := setup(t)
	usr := env.createUserWithPassword(t, "Alice Doe", "alice@test.cd")

	ok := marshallObj(t, SuccessResponse{
		Success: "If the email address supplied is associated with an account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})

	t.Run("unknown email", func(t *testing.T) {
		env.mailSvc.Reset()
		req, rec := newRequest(http.MethodPost, "/auth/password-reset", marshallObj(t, PasswordResetRequest{Email: "nobody@test.cd"}))
		env.serve(req, rec)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: ok}, rec)
		assert.Empty(t, env.mailSvc.SentMessages())
	})

	t.Run("email sent", func(t *testing.T) {
		env.mailSvc.Reset()
		req, rec := newRequest(http.MethodPost, "/auth/password-reset", marshallObj(t, PasswordResetRequest{Email: usr.Email}))
		env.serve(req, rec)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: ok}, rec)

		sent := env.mailSvc.SentMessages()
		require.Len(t, sent, 1)
		assert.Equal(t, usr.Email, sent[0].To[0].Address)
		assert.Contains(t, sent[0].TextContent, env.conf.FrontendBaseURL+"/password-reset/confirm?")
	})

	t.Run("confirm", func(t *testing.T) {
		newPwd := "N3w!Secret#pw"
		token, err := user.NewTokenGenerator(env.conf.SecretKey, env.conf.PasswordResetTimeoutDelta).MakeToken(usr)
		require.NoError(t, err)

		runHTTPTests(t, env, []httpTest{
			{
				name: "passwords mismatch", method: http.MethodPost, path: "/auth/password-reset-confirm",
				body: marshallObj(t, user.ResetUserPassword{
					Token: token, UID: user.EncodeUID(usr), Password: newPwd, PasswordConfirm: newPwd + "x",
				}),
				wantCode: http.StatusBadRequest,
			},
			{
				name: "invalid token", method: http.MethodPost, path: "/auth/password-reset-confirm",
				body: marshallObj(t, user.ResetUserPassword{
					Token: "abc-123", UID: user.EncodeUID(usr), Password: newPwd, PasswordConfirm: newPwd,
				}),
				wantCode: http.StatusBadRequest,
				wantData: marshallObj(t, httpErr{Error: user.ErrInvalidResetLink.Message}),
			},
			{
				name: "password reset", method: http.MethodPost, path: "/auth/password-reset-confirm",
				body: marshallObj(t, user.ResetUserPassword{
					Token: token, UID: user.EncodeUID(usr), Password: newPwd, PasswordConfirm: newPwd,
				}),
				wantData: marshallObj(t, SuccessResponse{Success: "Password has been reset with the new password."}),
			},
			{
				name: "token used", method: http.MethodPost, path: "/auth/password-reset-confirm",
				body: marshallObj(t, user.ResetUserPassword{
					Token: token, UID: user.EncodeUID(usr), Password: newPwd, PasswordConfirm: newPwd,
				}),
				wantCode: http.StatusBadRequest,
			},
			{
				name: "login with new password", method: http.MethodPost, path: "/auth/login",
				body: marshallObj(t, LoginRequest{Email: usr.Email, Password: newPwd}),
			},
		})
	})
}
