package echoapi_test

import (
	"context"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core/user"
	emailsvc "github.com/trezcool/academia/services/email"
	testutil "github.com/trezcool/academia/tests"
)

func Test_userApi_login(t *testing.T) {
	app := setup(t)
	testutil.CreateUser(t, app.UserSvc, "Hero", "hero@test.cd", []string{user.RoleStudent}, true)
	testutil.CreateUser(t, app.UserSvc, "N Dog", "ndog@test.cd", []string{user.RoleStudent}, false)

	body := func(email, pwd string) []byte {
		return marchallObj(t, echoapi.LoginRequest{Email: email, Password: pwd})
	}

	app.run(t, []httpTest{
		{
			name: "email & password required", method: http.MethodPost, path: "/api/users/login", body: body("", ""),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown email", method: http.MethodPost, path: "/api/users/login", body: body("lol@test.cd", testutil.Password),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/api/users/login", body: body("hero@test.cd", "wrong"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "inactive user", method: http.MethodPost, path: "/api/users/login", body: body("ndog@test.cd", testutil.Password),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	})

	t.Run("success (email is case insensitive)", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/api/users/login", body(" HERO@test.cd ", testutil.Password))
		app.do(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res echoapi.LoginResponse
		decode(t, rec, &res)
		assert.NotEmpty(t, res.Token)

		// the token opens the authed endpoints
		req, rec = newAuthRequest(http.MethodGet, "/api/users/me", res.Token)
		app.do(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code)

		var me user.User
		decode(t, rec, &me)
		assert.Equal(t, "hero@test.cd", me.Email)
		assert.NotNil(t, me.LastLogin)
	})
}

func Test_userApi_me(t *testing.T) {
	app := setup(t)
	hero := testutil.CreateUser(t, app.UserSvc, "Hero", "hero@test.cd", []string{user.RoleStudent}, true)

	app.run(t, []httpTest{
		{name: "Auth required", path: "/api/users/me", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "invalid token", path: "/api/users/me", token: "not.a.jwt",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{name: "me", path: "/api/users/me", token: app.getToken(t, hero), wantData: marchallObj(t, hero)},
	})
}

func Test_userApi_refreshToken(t *testing.T) {
	app := setup(t)
	naughty := testutil.CreateUser(t, app.UserSvc, "N Dog", "ndog@test.cd", []string{user.RoleStudent}, false)
	hero := testutil.CreateUser(t, app.UserSvc, "Hero", "hero@test.cd", []string{user.RoleStudent}, true)

	// original token older than the refresh window
	stale := app.auth.UserClaims(hero, time.Now().Add(-2*app.Conf.Server.JWTRefreshExpirationDelta).Unix())
	staleToken, err := app.auth.GenerateToken(stale)
	if err != nil {
		t.Fatalf("GenerateToken(): %v", err)
	}

	app.run(t, []httpTest{
		{name: "Auth required", method: http.MethodPost, path: "/api/users/token-refresh", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Inactive user not allowed", method: http.MethodPost, path: "/api/users/token-refresh", token: app.getToken(t, naughty),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "Refresh period expired", method: http.MethodPost, path: "/api/users/token-refresh", token: staleToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"}),
		},
		{name: "Token refreshed", method: http.MethodPost, path: "/api/users/token-refresh", token: app.getToken(t, hero)},
	})
}

func Test_userApi_update(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.UserSvc, "Admin", "admin@test.cd", []string{user.RoleAdmin}, true)
	hero := testutil.CreateUser(t, app.UserSvc, "Hero", "hero@test.cd", []string{user.RoleStudent}, true)
	adminToken := app.getToken(t, admin)
	bFalse := false

	app.run(t, []httpTest{
		{
			name: "Admin required", method: http.MethodPut, path: "/api/users/" + hero.ID, token: app.getToken(t, hero),
			body: marchallObj(t, user.UpdateUser{Name: "Zero"}), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "cannot grant a higher role", method: http.MethodPut, path: "/api/users/" + hero.ID, token: adminToken,
			body:     marchallObj(t, user.UpdateUser{Roles: []string{user.RoleAdminSuper}}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
		{
			name: "cannot deactivate oneself", method: http.MethodPut, path: "/api/users/" + admin.ID, token: adminToken,
			body: marchallObj(t, user.UpdateUser{IsActive: &bFalse}), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "unknown user", method: http.MethodPut, path: "/api/users/lol", token: adminToken,
			body: marchallObj(t, user.UpdateUser{Name: "Zero"}), wantCode: http.StatusNotFound,
		},
		{
			name: "rename", method: http.MethodPut, path: "/api/users/" + hero.ID, token: adminToken,
			body: marchallObj(t, user.UpdateUser{Name: "Zero"}),
		},
	})

	usr, err := app.UserSvc.GetByID(context.Background(), hero.ID)
	if assert.NoError(t, err) {
		assert.Equal(t, "Zero", usr.Name)
	}
}

func Test_userApi_passwordReset(t *testing.T) {
	app := setup(t)
	hero := testutil.CreateUser(t, app.UserSvc, "Hero", "hero@test.cd", []string{user.RoleStudent}, true)
	testutil.CreateUser(t, app.UserSvc, "N Dog", "ndog@test.cd", []string{user.RoleStudent}, false)

	ok := marchallObj(t, echoapi.SuccessResponse{
		Success: "If the email address is registered and active, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
	request := func(email string) []byte {
		return marchallObj(t, echoapi.PasswordResetRequest{Email: email})
	}

	emailsvc.ResetSentMessages()
	app.run(t, []httpTest{
		{
			name: "email required", method: http.MethodPost, path: "/api/users/password-reset", body: request(""),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"email": "this field is required"}),
		},
		{name: "unknown email", method: http.MethodPost, path: "/api/users/password-reset", body: request("lol@test.cd"), wantData: ok},
		{name: "inactive user", method: http.MethodPost, path: "/api/users/password-reset", body: request("ndog@test.cd"), wantData: ok},
	})
	assert.Empty(t, emailsvc.Sent())

	req, rec := newRequest(http.MethodPost, "/api/users/password-reset", request(" Hero@Test.cd "))
	app.do(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sent := emailsvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "hero@test.cd", sent[0].To[0].Address)
	link := regexp.MustCompile(`/password-reset/([A-Za-z0-9_-]+)/([A-Z2-7]+-[A-Za-z0-9_-]+)`).FindStringSubmatch(sent[0].TextContent)
	require.Len(t, link, 3, sent[0].TextContent)
	uid, token := link[1], link[2]
	assert.Equal(t, user.EncodeUID(hero), uid)

	newPwd := "Vk9#pQ2!mRw7"
	confirm := func(uid, token, pwd string) []byte {
		return marchallObj(t, user.ResetUserPassword{UID: uid, Token: token, Password: pwd, PasswordConfirm: pwd})
	}
	invalidToken := marchallObj(t, map[string]string{"token": "invalid token"})

	app.run(t, []httpTest{
		{
			name: "weak password", method: http.MethodPost, path: "/api/users/password-reset-confirm", body: confirm(uid, token, "lol"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"password": "password must contain at least 8 characters"}),
		},
		{
			name: "unknown uid", method: http.MethodPost, path: "/api/users/password-reset-confirm",
			body: confirm(user.EncodeUID(user.User{ID: "lol"}), token, newPwd), wantCode: http.StatusBadRequest, wantData: invalidToken,
		},
		{
			name: "tampered token", method: http.MethodPost, path: "/api/users/password-reset-confirm",
			body: confirm(uid, token+"x", newPwd), wantCode: http.StatusBadRequest, wantData: invalidToken,
		},
		{
			name: "reset", method: http.MethodPost, path: "/api/users/password-reset-confirm", body: confirm(uid, token, newPwd),
			wantData: marchallObj(t, echoapi.SuccessResponse{Success: "Password has been reset with the new password."}),
		},
		{
			name: "token is single use", method: http.MethodPost, path: "/api/users/password-reset-confirm",
			body: confirm(uid, token, "Jz4$hN8@cTq1"), wantCode: http.StatusBadRequest, wantData: invalidToken,
		},
	})

	usr, err := app.UserSvc.GetByID(context.Background(), hero.ID)
	require.NoError(t, err)
	assert.NoError(t, usr.CheckPassword(newPwd))
}
