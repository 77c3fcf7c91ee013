package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"server/internal/adapter/memstore"
	"server/internal/http/handlers"
	"server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/workflow"
)

// fakeObjects records puts and removes so tests can assert the cleanup path.
type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	removed []string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeObjects) URL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://objects.test/" + key, nil
}

func (f *fakeObjects) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.removed = append(f.removed, key)
	return nil
}

func (f *fakeObjects) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type testAPI struct {
	router  http.Handler
	objects *fakeObjects
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memstore.New()
	objects := newFakeObjects()
	cfg := &infra.Config{
		AppEnv:         "test",
		JWTSecret:      "test-secret",
		TokenTTL:       time.Hour,
		MaxUploadBytes: 1 << 20,
		PhotoURLExpiry: 15 * time.Minute,
		DefaultLocale:  "en",
	}
	app := handlers.NewApp(workflow.NewService(store, zerolog.Nop()), store, objects, cfg, zerolog.Nop())
	router := httpapi.NewRouter(app, httpapi.RouterOptions{
		JWTSecret:     cfg.JWTSecret,
		DefaultLocale: cfg.DefaultLocale,
	})
	return &testAPI{router: router, objects: objects}
}

func (api *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	return rec
}

func (api *testAPI) decode(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, out any) {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, wantStatus, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode response: %v; body: %s", err, rec.Body.String())
		}
	}
}

// provision creates an account through the API and returns its id and a token.
func (api *testAPI) provision(t *testing.T, role string) (string, string) {
	t.Helper()
	var user struct {
		ID string `json:"id"`
	}
	rec := api.do(t, http.MethodPost, "/v1/users", "", map[string]string{
		"email": fmt.Sprintf("%s-%d@example.com", role, time.Now().UnixNano()),
		"name":  "test " + role,
		"role":  role,
	})
	api.decode(t, rec, http.StatusCreated, &user)

	var token struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	rec = api.do(t, http.MethodPost, "/v1/auth/token", "", map[string]string{"user_id": user.ID})
	api.decode(t, rec, http.StatusOK, &token)
	if token.Role != role {
		t.Fatalf("issued role = %s, want %s", token.Role, role)
	}
	return user.ID, token.Token
}

type jobDoc struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Steps  []struct {
		ID      string `json:"id"`
		Status  string `json:"status"`
		Uploads []struct {
			ID string `json:"id"`
		} `json:"uploads"`
		Reviews []struct {
			Decision string `json:"decision"`
			Feedback string `json:"feedback"`
		} `json:"reviews"`
	} `json:"steps"`
}

func (api *testAPI) createJob(t *testing.T, managerToken, workerID string, stepTitles ...string) jobDoc {
	t.Helper()
	steps := make([]map[string]string, 0, len(stepTitles))
	for _, title := range stepTitles {
		steps = append(steps, map[string]string{"title": title})
	}
	rec := api.do(t, http.MethodPost, "/v1/jobs", managerToken, map[string]any{
		"title":     "renovation",
		"worker_id": workerID,
		"steps":     steps,
	})
	var job jobDoc
	api.decode(t, rec, http.StatusCreated, &job)
	return job
}

func (api *testAPI) uploadPhoto(t *testing.T, workerToken, stepID, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="photo"; filename="proof.jpg"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write([]byte("not really a jpeg")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/steps/"+stepID+"/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+workerToken)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/v1/healthz", "", nil)
	var body map[string]string
	api.decode(t, rec, http.StatusOK, &body)
	if body["status"] != "ok" {
		t.Fatalf("health = %v", body)
	}
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/v1/jobs", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list = %d, want 401", rec.Code)
	}
	rec = api.do(t, http.MethodGet, "/v1/jobs", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token list = %d, want 401", rec.Code)
	}
}

func TestTokenIssueUnknownUser(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/v1/auth/token", "", map[string]string{
		"user_id": "2a9f9f5e-0000-4000-8000-000000000000",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("token for unknown user = %d, want 404", rec.Code)
	}
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	_, managerToken := api.provision(t, "manager")
	workerID, workerToken := api.provision(t, "worker")

	job := api.createJob(t, managerToken, workerID, "pour slab", "frame walls")
	if job.Status != "in_progress" {
		t.Fatalf("new job status = %s", job.Status)
	}
	if job.Steps[0].Status != "awaiting_upload" || job.Steps[1].Status != "pending" {
		t.Fatalf("step statuses = %s, %s", job.Steps[0].Status, job.Steps[1].Status)
	}

	rec := api.uploadPhoto(t, workerToken, job.Steps[0].ID, "image/jpeg")
	var upload struct {
		ID string `json:"id"`
	}
	api.decode(t, rec, http.StatusCreated, &upload)
	if api.objects.count() != 1 {
		t.Fatalf("stored objects = %d, want 1", api.objects.count())
	}

	// Reject with feedback, then resubmit and approve.
	rec = api.do(t, http.MethodPost, "/v1/uploads/"+upload.ID+"/reviews", managerToken, map[string]string{
		"decision": "rejected",
		"feedback": "wrong angle",
	})
	api.decode(t, rec, http.StatusCreated, nil)

	var fetched jobDoc
	rec = api.do(t, http.MethodGet, "/v1/jobs/"+job.ID, workerToken, nil)
	api.decode(t, rec, http.StatusOK, &fetched)
	if fetched.Steps[0].Status != "rejected" {
		t.Fatalf("rejected step wire status = %s, want rejected", fetched.Steps[0].Status)
	}
	if fetched.Steps[0].Reviews[0].Feedback != "wrong angle" {
		t.Fatalf("feedback = %q", fetched.Steps[0].Reviews[0].Feedback)
	}

	rec = api.uploadPhoto(t, workerToken, job.Steps[0].ID, "image/png")
	api.decode(t, rec, http.StatusCreated, &upload)
	rec = api.do(t, http.MethodPost, "/v1/uploads/"+upload.ID+"/reviews", managerToken, map[string]string{
		"decision": "approved",
	})
	api.decode(t, rec, http.StatusCreated, nil)

	rec = api.do(t, http.MethodGet, "/v1/jobs/"+job.ID, managerToken, nil)
	api.decode(t, rec, http.StatusOK, &fetched)
	if fetched.Steps[0].Status != "approved" || fetched.Steps[1].Status != "awaiting_upload" {
		t.Fatalf("after approval: %s, %s", fetched.Steps[0].Status, fetched.Steps[1].Status)
	}
	if len(fetched.Steps[0].Uploads) != 2 {
		t.Fatalf("first step uploads = %d, want 2", len(fetched.Steps[0].Uploads))
	}

	rec = api.uploadPhoto(t, workerToken, job.Steps[1].ID, "image/jpeg")
	api.decode(t, rec, http.StatusCreated, &upload)
	rec = api.do(t, http.MethodPost, "/v1/uploads/"+upload.ID+"/reviews", managerToken, map[string]string{
		"decision": "approved",
	})
	api.decode(t, rec, http.StatusCreated, nil)

	rec = api.do(t, http.MethodGet, "/v1/jobs/"+job.ID, managerToken, nil)
	api.decode(t, rec, http.StatusOK, &fetched)
	if fetched.Status != "completed" {
		t.Fatalf("final job status = %s, want completed", fetched.Status)
	}
}

func TestJobCreateValidation(t *testing.T) {
	api := newTestAPI(t)
	_, managerToken := api.provision(t, "manager")
	workerID, workerToken := api.provision(t, "worker")

	rec := api.do(t, http.MethodPost, "/v1/jobs", managerToken, map[string]any{
		"worker_id": workerID,
		"steps":     []map[string]string{{"title": "a"}},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing title = %d, want 422", rec.Code)
	}

	rec = api.do(t, http.MethodPost, "/v1/jobs", managerToken, map[string]any{
		"title":     "x",
		"worker_id": workerID,
		"steps":     []map[string]string{},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty steps = %d, want 422", rec.Code)
	}

	rec = api.do(t, http.MethodPost, "/v1/jobs", workerToken, map[string]any{
		"title":     "x",
		"worker_id": workerID,
		"steps":     []map[string]string{{"title": "a"}},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("worker-created job = %d, want 403", rec.Code)
	}
}

func TestUploadRejectsNonImage(t *testing.T) {
	api := newTestAPI(t)
	_, managerToken := api.provision(t, "manager")
	workerID, workerToken := api.provision(t, "worker")
	job := api.createJob(t, managerToken, workerID, "only step")

	rec := api.uploadPhoto(t, workerToken, job.Steps[0].ID, "application/pdf")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("pdf upload = %d, want 422", rec.Code)
	}
	if api.objects.count() != 0 {
		t.Fatalf("rejected upload left %d objects behind", api.objects.count())
	}
}

func TestUploadConflictCleansUpObject(t *testing.T) {
	api := newTestAPI(t)
	_, managerToken := api.provision(t, "manager")
	workerID, workerToken := api.provision(t, "worker")
	job := api.createJob(t, managerToken, workerID, "first", "second")

	// The second step is still pending, so the workflow refuses the upload
	// and the already-stored object must be removed again.
	rec := api.uploadPhoto(t, workerToken, job.Steps[1].ID, "image/jpeg")
	if rec.Code != http.StatusConflict {
		t.Fatalf("upload to pending step = %d, want 409; body: %s", rec.Code, rec.Body.String())
	}
	if api.objects.count() != 0 {
		t.Fatalf("conflicting upload left %d objects behind", api.objects.count())
	}
	if len(api.objects.removed) != 1 {
		t.Fatalf("cleanup removals = %d, want 1", len(api.objects.removed))
	}
}

func TestPhotoURLVisibility(t *testing.T) {
	api := newTestAPI(t)
	_, managerToken := api.provision(t, "manager")
	workerID, workerToken := api.provision(t, "worker")
	_, otherManagerToken := api.provision(t, "manager")
	_, viewerToken := api.provision(t, "viewer")
	job := api.createJob(t, managerToken, workerID, "only step")

	rec := api.uploadPhoto(t, workerToken, job.Steps[0].ID, "image/jpeg")
	var upload struct {
		ID string `json:"id"`
	}
	api.decode(t, rec, http.StatusCreated, &upload)

	var link struct {
		URL       string `json:"url"`
		ExpiresIn int    `json:"expires_in"`
	}
	rec = api.do(t, http.MethodGet, "/v1/uploads/"+upload.ID+"/photo", managerToken, nil)
	api.decode(t, rec, http.StatusOK, &link)
	if !strings.HasPrefix(link.URL, "https://objects.test/steps/") {
		t.Fatalf("photo url = %q", link.URL)
	}
	if link.ExpiresIn != int((15 * time.Minute).Seconds()) {
		t.Fatalf("expires_in = %d", link.ExpiresIn)
	}

	rec = api.do(t, http.MethodGet, "/v1/uploads/"+upload.ID+"/photo", viewerToken, nil)
	api.decode(t, rec, http.StatusOK, &link)

	rec = api.do(t, http.MethodGet, "/v1/uploads/"+upload.ID+"/photo", otherManagerToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign manager photo url = %d, want 403", rec.Code)
	}
}

func TestJobDeleteOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	_, managerToken := api.provision(t, "manager")
	workerID, workerToken := api.provision(t, "worker")
	job := api.createJob(t, managerToken, workerID, "a", "b")

	rec := api.do(t, http.MethodDelete, "/v1/jobs/"+job.ID, workerToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("worker delete = %d, want 403", rec.Code)
	}
	rec = api.do(t, http.MethodDelete, "/v1/jobs/"+job.ID, managerToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("manager delete = %d, want 204", rec.Code)
	}
	rec = api.do(t, http.MethodGet, "/v1/jobs/"+job.ID, managerToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted job get = %d, want 404", rec.Code)
	}
}

func TestStepDeleteOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	_, managerToken := api.provision(t, "manager")
	workerID, _ := api.provision(t, "worker")
	job := api.createJob(t, managerToken, workerID, "a", "b")

	rec := api.do(t, http.MethodDelete, "/v1/steps/"+job.Steps[1].ID, managerToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("step delete = %d, want 204; body: %s", rec.Code, rec.Body.String())
	}
	var fetched jobDoc
	rec = api.do(t, http.MethodGet, "/v1/jobs/"+job.ID, managerToken, nil)
	api.decode(t, rec, http.StatusOK, &fetched)
	if len(fetched.Steps) != 1 {
		t.Fatalf("steps after delete = %d, want 1", len(fetched.Steps))
	}
}

func TestMe(t *testing.T) {
	api := newTestAPI(t)
	userID, token := api.provision(t, "viewer")
	var me struct {
		ID   string `json:"id"`
		Role string `json:"role"`
	}
	rec := api.do(t, http.MethodGet, "/v1/me", token, nil)
	api.decode(t, rec, http.StatusOK, &me)
	if me.ID != userID || me.Role != "viewer" {
		t.Fatalf("me = %+v", me)
	}
}
