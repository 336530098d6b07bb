package echoapi_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/application"
	"github.com/trezcool/academia/core/user"
	emailsvc "github.com/trezcool/academia/services/email"
	testutil "github.com/trezcool/academia/tests"
)

func submitApplication(t *testing.T, app *testApp, na application.NewApplication) echoapi.SubmitApplicationResponse {
	req, rec := newRequest(http.MethodPost, "/api/applications", marchallObj(t, na))
	app.do(req, rec)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res echoapi.SubmitApplicationResponse
	decode(t, rec, &res)
	return res
}

func newApplication() application.NewApplication {
	return application.NewApplication{
		FirstName:    "Jane",
		LastName:     "Doe",
		Email:        "Jane@Test.cd",
		LMSProgramID: "lms-p1",
		LMSIntakeID:  "intake-open",
	}
}

func Test_applicationApi_submit(t *testing.T) {
	app := setup(t)

	closed := newApplication()
	closed.LMSIntakeID = "intake-closed"

	app.run(t, []httpTest{
		{
			name: "required fields", method: http.MethodPost, path: "/api/applications", body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"first_name":     "this field is required",
				"last_name":      "this field is required",
				"email":          "this field is required",
				"lms_program_id": "this field is required",
				"lms_intake_id":  "this field is required",
			}),
		},
		{
			name: "closed intake", method: http.MethodPost, path: "/api/applications", body: marchallObj(t, closed),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"lms_intake_id": "intake not found or closed"}),
		},
	})

	emailsvc.ResetSentMessages()
	res := submitApplication(t, app, newApplication())
	assert.Equal(t, application.StatusPending, res.Status)
	assert.Regexp(t, `^APP-\d{8}-[0-9A-F]{8}$`, res.ReferenceNumber)

	sent := emailsvc.Sent()
	if assert.Len(t, sent, 1) {
		assert.Equal(t, "jane@test.cd", sent[0].To[0].Address)
		assert.Contains(t, sent[0].TextContent, res.ReferenceNumber)
	}
}

func Test_applicationApi_submitWithDocuments(t *testing.T) {
	app := setup(t)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	na := newApplication()
	for k, v := range map[string]string{
		"first_name":     na.FirstName,
		"last_name":      na.LastName,
		"email":          na.Email,
		"lms_program_id": na.LMSProgramID,
		"lms_intake_id":  na.LMSIntakeID,
	} {
		require.NoError(t, w.WriteField(k, v))
	}
	fw, err := w.CreateFormFile("transcript", "grades.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/applications", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	app.do(req, rec)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res echoapi.SubmitApplicationResponse
	decode(t, rec, &res)
	stored, err := app.ApplicationSvc.GetByReference(context.Background(), res.ReferenceNumber)
	require.NoError(t, err)
	if assert.Len(t, stored.Documents, 1) {
		doc := stored.Documents[0]
		assert.Equal(t, "transcript", doc.DocumentType)
		assert.Equal(t, "grades.pdf", doc.OriginalName)
		assert.Equal(t, core.ApplicationsDir+"/"+res.ReferenceNumber+"/transcript.pdf", doc.Path)
	}
}

func Test_applicationApi_review(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.UserSvc, "Admin", "admin@test.cd", []string{user.RoleAdmin}, true)
	adminToken := app.getToken(t, admin)

	ref := submitApplication(t, app, newApplication()).ReferenceNumber
	stored, err := app.ApplicationSvc.GetByReference(context.Background(), ref)
	require.NoError(t, err)
	id := stored.ID

	app.run(t, []httpTest{
		{name: "unknown reference", path: "/api/applications/APP-19700101-00000000/status", wantCode: http.StatusNotFound},
		{name: "Admin required", path: "/api/applications/" + id, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "cannot approve before initial approval", method: http.MethodPost, path: "/api/applications/" + id + "/approve",
			token: adminToken, wantCode: http.StatusUnprocessableEntity,
			wantData: marchallObj(t, httpErr{Error: "Only initially approved applications can be approved"}),
		},
		{
			name: "reason required to reject", method: http.MethodPost, path: "/api/applications/" + id + "/reject",
			token: adminToken, body: []byte(`{"reason":"  "}`), wantCode: http.StatusBadRequest,
		},
		{name: "initial approval", method: http.MethodPost, path: "/api/applications/" + id + "/initial-approve", token: adminToken},
		{name: "final approval", method: http.MethodPost, path: "/api/applications/" + id + "/approve", token: adminToken},
	})

	// the approval queued the creation of the learning account
	assert.Equal(t, []string{"lms-account:" + id}, app.SyncJobs.Ran)
	if assert.Len(t, app.FakeLMS.Created, 1) {
		assert.Equal(t, ref, app.FakeLMS.Created[0].ExternalRef)
		assert.Equal(t, "intake-open", app.FakeLMS.Created[0].IntakeID)
	}
	approved, err := app.ApplicationSvc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, application.StatusApproved, approved.Status)
	assert.Equal(t, "lms-user-1", approved.LMSUserID)
	assert.Equal(t, "LMS00001", approved.LMSStudentNumber)

	req, rec := newRequest(http.MethodGet, "/api/applications/"+ref+"/status")
	app.do(req, rec)
	require.Equal(t, http.StatusOK, rec.Code)
	var status application.StatusView
	decode(t, rec, &status)
	assert.Equal(t, application.StatusApproved, status.Status)
	assert.Equal(t, "Jane Doe", status.FullName)

	app.run(t, []httpTest{
		{
			name: "approved applications cannot be rejected", method: http.MethodPost, path: "/api/applications/" + id + "/reject",
			token: adminToken, body: []byte(`{"reason":"late"}`), wantCode: http.StatusUnprocessableEntity,
		},
	})
}

func Test_applicationApi_sso(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.UserSvc, "Admin", "admin@test.cd", []string{user.RoleAdmin}, true)
	jane := testutil.CreateUser(t, app.UserSvc, "Jane Doe", "jane@test.cd", []string{user.RoleStudent}, true)
	adminToken := app.getToken(t, admin)
	janeToken := app.getToken(t, jane)

	app.run(t, []httpTest{
		{
			name: "no linked account", method: http.MethodPost, path: "/api/lms/sso", token: janeToken, body: []byte(`{}`),
			wantCode: http.StatusUnprocessableEntity, wantData: marchallObj(t, httpErr{Error: "No learning account is linked to your email"}),
		},
	})

	ref := submitApplication(t, app, newApplication()).ReferenceNumber
	stored, err := app.ApplicationSvc.GetByReference(context.Background(), ref)
	require.NoError(t, err)
	for _, step := range []string{"initial-approve", "approve"} {
		req, rec := newAuthRequest(http.MethodPost, "/api/applications/"+stored.ID+"/"+step, adminToken)
		app.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	req, rec := newAuthRequest(http.MethodPost, "/api/lms/sso", janeToken, []byte(`{"redirect_to":"/courses"}`))
	app.do(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res core.LMSSSOResult
	decode(t, rec, &res)
	assert.True(t, res.Success)
	assert.Equal(t, "sso-lms-user-1", res.AccessToken)
	assert.Equal(t, "/courses", res.RedirectTo)

	app.FakeLMS.SetDown(true)
	app.run(t, []httpTest{
		{
			name: "platform down", method: http.MethodPost, path: "/api/lms/sso", token: janeToken, body: []byte(`{}`),
			wantCode: http.StatusUnprocessableEntity,
			wantData: marchallObj(t, httpErr{Error: "The learning platform is unavailable, please try again later"}),
		},
		{name: "intakes degrade to empty", path: "/api/lms/intakes", wantData: []byte(`[]`)},
	})
}

func Test_lms_openIntakes(t *testing.T) {
	app := setup(t)

	req, rec := newRequest(http.MethodGet, "/api/lms/intakes")
	app.do(req, rec)
	require.Equal(t, http.StatusOK, rec.Code)
	var intakes []core.LMSIntake
	decode(t, rec, &intakes)
	if assert.Len(t, intakes, 1) {
		assert.Equal(t, "intake-open", intakes[0].ID)
	}
}
