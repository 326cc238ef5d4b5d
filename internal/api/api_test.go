package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/recetario/recipe-app/internal/auth"
	"github.com/recetario/recipe-app/internal/recipe"
)

// fakeUsers is an in-memory UserStore.
type fakeUsers struct {
	byEmail map[string]auth.User
	nextID  int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byEmail: make(map[string]auth.User)}
}

func (f *fakeUsers) Create(ctx context.Context, email, passwordHash string) (auth.User, error) {
	if _, ok := f.byEmail[email]; ok {
		return auth.User{}, auth.ErrEmailTaken
	}
	f.nextID++
	user := auth.User{
		ID:           fmt.Sprintf("user-%d", f.nextID),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         auth.RoleUser,
	}
	f.byEmail[email] = user
	return user, nil
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (auth.User, error) {
	user, ok := f.byEmail[email]
	if !ok {
		return auth.User{}, auth.ErrInvalidCredentials
	}
	return user, nil
}

func (f *fakeUsers) GetByID(ctx context.Context, id string) (auth.User, error) {
	for _, user := range f.byEmail {
		if user.ID == id {
			return user, nil
		}
	}
	return auth.User{}, auth.ErrInvalidCredentials
}

// fakeSessions is an in-memory SessionStore.
type fakeSessions struct {
	byToken map[string]*auth.RefreshSession
	nextID  int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byToken: make(map[string]*auth.RefreshSession)}
}

func (f *fakeSessions) Create(ctx context.Context, userID string, remember bool) (string, error) {
	f.nextID++
	token := fmt.Sprintf("refresh-%d", f.nextID)
	f.byToken[token] = &auth.RefreshSession{Token: token, UserID: userID, Remember: remember}
	return token, nil
}

func (f *fakeSessions) Get(ctx context.Context, token string) (*auth.RefreshSession, error) {
	return f.byToken[token], nil
}

func (f *fakeSessions) Refresh(ctx context.Context, sess *auth.RefreshSession) error {
	return nil
}

func (f *fakeSessions) Delete(ctx context.Context, token string) error {
	delete(f.byToken, token)
	return nil
}

// fakeFlags is an in-memory FlagStore.
type fakeFlags struct {
	values map[string]string
}

func (f *fakeFlags) key(userID, name string) string { return userID + ":" + name }

func (f *fakeFlags) Get(ctx context.Context, userID, name string) (string, bool, error) {
	v, ok := f.values[f.key(userID, name)]
	return v, ok, nil
}

func (f *fakeFlags) Set(ctx context.Context, userID, name, value string) error {
	f.values[f.key(userID, name)] = value
	return nil
}

func (f *fakeFlags) Remove(ctx context.Context, userID, name string) error {
	delete(f.values, f.key(userID, name))
	return nil
}

// fakeRecipes is an in-memory RecipeStore.
type fakeRecipes struct {
	byID   map[string]recipe.Recipe
	nextID int
}

func newFakeRecipes() *fakeRecipes {
	return &fakeRecipes{byID: make(map[string]recipe.Recipe)}
}

func (f *fakeRecipes) Search(ctx context.Context, query string, limit int) ([]recipe.Recipe, error) {
	out := make([]recipe.Recipe, 0, len(f.byID))
	for _, r := range f.byID {
		if query == "" || strings.Contains(strings.ToLower(r.Title), strings.ToLower(query)) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRecipes) Create(ctx context.Context, authorID string, d recipe.Draft) (recipe.Recipe, error) {
	f.nextID++
	r := recipe.Recipe{
		ID:          fmt.Sprintf("recipe-%d", f.nextID),
		Title:       d.Title,
		Description: d.Description,
		Ingredients: d.Ingredients,
		Steps:       d.Steps,
		AuthorID:    authorID,
	}
	f.byID[r.ID] = r
	return r, nil
}

func (f *fakeRecipes) GetByID(ctx context.Context, id string) (recipe.Recipe, error) {
	r, ok := f.byID[id]
	if !ok {
		return recipe.Recipe{}, recipe.ErrNotFound
	}
	return r, nil
}

func (f *fakeRecipes) Update(ctx context.Context, id string, d recipe.Draft) error {
	r, ok := f.byID[id]
	if !ok {
		return recipe.ErrNotFound
	}
	r.Title = d.Title
	r.Description = d.Description
	r.Ingredients = d.Ingredients
	r.Steps = d.Steps
	f.byID[id] = r
	return nil
}

func (f *fakeRecipes) Delete(ctx context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return recipe.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeRecipes) AuthorOf(ctx context.Context, id string) (string, error) {
	r, ok := f.byID[id]
	if !ok {
		return "", recipe.ErrNotFound
	}
	return r.AuthorID, nil
}

func (f *fakeRecipes) SetImageURL(ctx context.Context, id, url string) error {
	r, ok := f.byID[id]
	if !ok {
		return recipe.ErrNotFound
	}
	r.ImageURL = url
	f.byID[id] = r
	return nil
}

func newTestServer() (*Server, *fakeUsers, *fakeSessions) {
	users := newFakeUsers()
	sessions := newFakeSessions()
	srv := NewServer(Deps{
		Users:    users,
		Sessions: sessions,
		Signer:   auth.NewTokenSigner([]byte("test-secret")),
		Recipes:  newFakeRecipes(),
		Flags:    &fakeFlags{values: make(map[string]string)},
	})
	return srv, users, sessions
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSignupAndLogin(t *testing.T) {
	srv, _, _ := newTestServer()
	router := srv.Router()

	creds := map[string]interface{}{"email": "ana@example.com", "password": "secret-password"}

	rec := postJSON(t, router, "/api/auth/signup", creds)
	if rec.Code != http.StatusOK {
		t.Fatalf("signup status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal signup response: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("expected both tokens in signup response")
	}
	if resp.Role != auth.RoleUser {
		t.Errorf("expected role %q, got %q", auth.RoleUser, resp.Role)
	}

	// Duplicate signup is refused.
	rec = postJSON(t, router, "/api/auth/signup", creds)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate signup status = %d, want %d", rec.Code, http.StatusConflict)
	}

	// Login with the right password succeeds.
	rec = postJSON(t, router, "/api/auth/login", creds)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Login with a wrong password fails with the generic error.
	rec = postJSON(t, router, "/api/auth/login",
		map[string]interface{}{"email": "ana@example.com", "password": "wrong-password"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestSignupRejectsBadInput(t *testing.T) {
	srv, _, _ := newTestServer()
	router := srv.Router()

	cases := []map[string]interface{}{
		{"email": "not-an-email", "password": "secret-password"},
		{"email": "ana@example.com", "password": "short"},
		{"email": "", "password": "secret-password"},
	}
	for _, c := range cases {
		rec := postJSON(t, router, "/api/auth/signup", c)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("signup(%v) status = %d, want %d", c, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	srv, _, _ := newTestServer()
	router := srv.Router()

	rec := postJSON(t, router, "/api/auth/signup",
		map[string]interface{}{"email": "ana@example.com", "password": "secret-password"})
	var signup tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &signup); err != nil {
		t.Fatalf("unmarshal signup: %v", err)
	}

	rec = postJSON(t, router, "/api/auth/refresh",
		map[string]interface{}{"refresh_token": signup.RefreshToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var refreshed tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &refreshed); err != nil {
		t.Fatalf("unmarshal refresh: %v", err)
	}
	if refreshed.AccessToken == "" {
		t.Fatal("expected a fresh access token")
	}

	// Unknown refresh token is rejected.
	rec = postJSON(t, router, "/api/auth/refresh",
		map[string]interface{}{"refresh_token": "bogus"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bogus refresh status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestLogoutDeletesRefreshSession(t *testing.T) {
	srv, _, sessions := newTestServer()
	router := srv.Router()

	rec := postJSON(t, router, "/api/auth/signup",
		map[string]interface{}{"email": "ana@example.com", "password": "secret-password"})
	var signup tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &signup); err != nil {
		t.Fatalf("unmarshal signup: %v", err)
	}

	rec = postJSON(t, router, "/api/auth/logout",
		map[string]interface{}{"refresh_token": signup.RefreshToken})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if sessions.byToken[signup.RefreshToken] != nil {
		t.Error("expected refresh session to be deleted")
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv, _, _ := newTestServer()
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/flags/dark_mode", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no-token status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/flags/dark_mode", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad-token status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestFlagLifecycle(t *testing.T) {
	srv, _, _ := newTestServer()
	router := srv.Router()

	rec := postJSON(t, router, "/api/auth/signup",
		map[string]interface{}{"email": "ana@example.com", "password": "secret-password"})
	var signup tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &signup); err != nil {
		t.Fatalf("unmarshal signup: %v", err)
	}
	bearer := "Bearer " + signup.AccessToken

	do := func(method, path, body string) *httptest.ResponseRecorder {
		var req *http.Request
		if body != "" {
			req = httptest.NewRequest(method, path, strings.NewReader(body))
		} else {
			req = httptest.NewRequest(method, path, nil)
		}
		req.Header.Set("Authorization", bearer)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	// Unset flag reads as not found.
	if rec := do(http.MethodGet, "/api/flags/dark_mode", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unset flag status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	if rec := do(http.MethodPut, "/api/flags/dark_mode", `{"value":"on"}`); rec.Code != http.StatusNoContent {
		t.Fatalf("set flag status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	rec2 := do(http.MethodGet, "/api/flags/dark_mode", "")
	if rec2.Code != http.StatusOK {
		t.Fatalf("get flag status = %d, want %d", rec2.Code, http.StatusOK)
	}
	var flag struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(rec2.Body.Bytes(), &flag); err != nil {
		t.Fatalf("unmarshal flag: %v", err)
	}
	if flag.Value != "on" {
		t.Errorf("flag value = %q, want %q", flag.Value, "on")
	}

	if rec := do(http.MethodDelete, "/api/flags/dark_mode", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("remove flag status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if rec := do(http.MethodGet, "/api/flags/dark_mode", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("removed flag status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	srv, _, _ := newTestServer()
	router := srv.Router()

	rec := postJSON(t, router, "/api/auth/signup",
		map[string]interface{}{"email": "ana@example.com", "password": "secret-password"})
	var signup tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &signup); err != nil {
		t.Fatalf("unmarshal signup: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/reports", nil)
	req.Header.Set("Authorization", "Bearer "+signup.AccessToken)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusForbidden {
		t.Fatalf("non-admin status = %d, want %d", rec2.Code, http.StatusForbidden)
	}
}

// signupBearer registers a fresh account and returns its bearer header.
func signupBearer(t *testing.T, router http.Handler, email string) string {
	t.Helper()
	rec := postJSON(t, router, "/api/auth/signup",
		map[string]interface{}{"email": email, "password": "secret-password"})
	if rec.Code != http.StatusOK {
		t.Fatalf("signup status = %d, want %d", rec.Code, http.StatusOK)
	}
	var signup tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &signup); err != nil {
		t.Fatalf("unmarshal signup: %v", err)
	}
	return "Bearer " + signup.AccessToken
}

func authedJSON(t *testing.T, router http.Handler, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", bearer)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func paellaDraft() map[string]interface{} {
	return map[string]interface{}{
		"title":       "Paella valenciana",
		"description": "La de siempre",
		"ingredients": []string{"arroz", "azafran", "pollo"},
		"steps":       []string{"sofreir", "anadir arroz", "reposar"},
	}
}

func TestRecipeUpdateByAuthor(t *testing.T) {
	srv, _, _ := newTestServer()
	router := srv.Router()
	bearer := signupBearer(t, router, "ana@example.com")

	rec := authedJSON(t, router, http.MethodPost, "/api/recipes", bearer, paellaDraft())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", rec.Code, http.StatusCreated)
	}
	var created recipe.Recipe
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal created: %v", err)
	}

	draft := paellaDraft()
	draft["title"] = "Paella de marisco"
	draft["ingredients"] = []string{"arroz", "azafran", "gambas"}
	rec2 := authedJSON(t, router, http.MethodPut, "/api/recipes/"+created.ID, bearer, draft)
	if rec2.Code != http.StatusOK {
		t.Fatalf("update status = %d, want %d: %s", rec2.Code, http.StatusOK, rec2.Body.String())
	}
	var updated recipe.Recipe
	if err := json.Unmarshal(rec2.Body.Bytes(), &updated); err != nil {
		t.Fatalf("unmarshal updated: %v", err)
	}
	if updated.Title != "Paella de marisco" {
		t.Errorf("title = %q, want %q", updated.Title, "Paella de marisco")
	}

	stored, _ := srv.deps.Recipes.GetByID(context.Background(), created.ID)
	if stored.Title != "Paella de marisco" || len(stored.Ingredients) != 3 || stored.Ingredients[2] != "gambas" {
		t.Errorf("stored recipe not updated: %+v", stored)
	}
}

func TestRecipeUpdateByNonAuthorForbidden(t *testing.T) {
	srv, _, _ := newTestServer()
	router := srv.Router()

	owner := signupBearer(t, router, "ana@example.com")
	rec := authedJSON(t, router, http.MethodPost, "/api/recipes", owner, paellaDraft())
	var created recipe.Recipe
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal created: %v", err)
	}

	other := signupBearer(t, router, "luis@example.com")
	rec2 := authedJSON(t, router, http.MethodPut, "/api/recipes/"+created.ID, other, paellaDraft())
	if rec2.Code != http.StatusForbidden {
		t.Fatalf("non-author update status = %d, want %d", rec2.Code, http.StatusForbidden)
	}

	stored, _ := srv.deps.Recipes.GetByID(context.Background(), created.ID)
	if stored.Title != "Paella valenciana" {
		t.Errorf("recipe changed by non-author: %+v", stored)
	}
}

func TestRecipeUpdateUnknownID(t *testing.T) {
	srv, _, _ := newTestServer()
	router := srv.Router()
	bearer := signupBearer(t, router, "ana@example.com")

	rec := authedJSON(t, router, http.MethodPut, "/api/recipes/no-such-recipe", bearer, paellaDraft())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRecipeUpdateRejectsInvalidDraft(t *testing.T) {
	srv, _, _ := newTestServer()
	router := srv.Router()
	bearer := signupBearer(t, router, "ana@example.com")

	rec := authedJSON(t, router, http.MethodPost, "/api/recipes", bearer, paellaDraft())
	var created recipe.Recipe
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal created: %v", err)
	}

	draft := paellaDraft()
	draft["title"] = ""
	rec2 := authedJSON(t, router, http.MethodPut, "/api/recipes/"+created.ID, bearer, draft)
	if rec2.Code != http.StatusBadRequest {
		t.Fatalf("blank-title update status = %d, want %d", rec2.Code, http.StatusBadRequest)
	}
}

func TestRecipeSearchAliasRoute(t *testing.T) {
	srv, _, _ := newTestServer()
	router := srv.Router()
	bearer := signupBearer(t, router, "ana@example.com")

	if rec := authedJSON(t, router, http.MethodPost, "/api/recipes", bearer, paellaDraft()); rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	rec := authedJSON(t, router, http.MethodGet, "/api/recipes/search?q=paella", bearer, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search alias status = %d, want %d", rec.Code, http.StatusOK)
	}
	var results []recipe.Recipe
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("unmarshal results: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("search results = %d, want 1", len(results))
	}
}
