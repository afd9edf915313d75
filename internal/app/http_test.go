package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"barterboard/api/internal/auth"
	"barterboard/api/internal/store"
	"golang.org/x/crypto/bcrypt"
)

func issueTestToken(t *testing.T, svc *Service, userID string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(svc.cfg.TokenSecret), auth.Claims{
		Sub:  userID,
		Name: "Avery",
		JTI:  "jti-test",
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doRequest(server *HTTPServer, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func parseBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func TestSignUpReturnsSessionContract(t *testing.T) {
	var createdUser store.User
	fs := &fakeStore{
		createUserFn: func(_ context.Context, user store.User) error {
			createdUser = user
			return nil
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	rr := doRequest(server, http.MethodPost, "/api/auth/signup", "",
		`{"email":"Avery@Example.com","password":"hunter2hunter2","displayName":"Avery"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	if payload["token"] == "" || payload["token"] == nil {
		t.Fatal("expected token in response")
	}
	if payload["refreshToken"] == "" || payload["refreshToken"] == nil {
		t.Fatal("expected refreshToken in response")
	}
	if payload["userName"] != "Avery" {
		t.Fatalf("expected userName Avery, got %v", payload["userName"])
	}
	if createdUser.Email != "avery@example.com" {
		t.Fatalf("expected normalized email, got %q", createdUser.Email)
	}
}

func TestSignUpDuplicateEmailReturnsConflict(t *testing.T) {
	fs := &fakeStore{
		getUserByEmailFn: func(_ context.Context, _ string) (store.User, error) {
			return store.User{ID: "user-1", Email: "avery@example.com"}, nil
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	rr := doRequest(server, http.MethodPost, "/api/auth/signup", "",
		`{"email":"avery@example.com","password":"hunter2hunter2","displayName":"Avery"}`)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := parseBody(t, rr); payload["code"] != "EMAIL_TAKEN" {
		t.Fatalf("expected code EMAIL_TAKEN, got %v", payload["code"])
	}
}

func TestSignInWrongPasswordReturnsUnauthorized(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	fs := &fakeStore{
		getUserByEmailFn: func(_ context.Context, _ string) (store.User, error) {
			return store.User{ID: "user-1", Email: "avery@example.com", PasswordHash: string(hash)}, nil
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	rr := doRequest(server, http.MethodPost, "/api/auth/signin", "",
		`{"email":"avery@example.com","password":"wrong"}`)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := parseBody(t, rr); payload["code"] != "UNAUTHORIZED" {
		t.Fatalf("expected code UNAUTHORIZED, got %v", payload["code"])
	}
}

func TestProtectedRouteWithoutBearerReturnsUnauthorized(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")

	rr := doRequest(server, http.MethodPost, "/api/ads", "", `{"title":"Radio"}`)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestListAdsIsPublic(t *testing.T) {
	fs := &fakeStore{
		listAdsFn: func(_ context.Context, category, condition string) ([]store.Ad, error) {
			if category != "books" || condition != "" {
				t.Fatalf("unexpected filters: %q %q", category, condition)
			}
			return []store.Ad{{ID: "ad-1", Title: "Atlas", Category: "books", Condition: "used"}}, nil
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	rr := doRequest(server, http.MethodGet, "/api/ads?category=books", "", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	ads, ok := payload["ads"].([]any)
	if !ok || len(ads) != 1 {
		t.Fatalf("expected 1 ad, got %v", payload["ads"])
	}
}

func TestListAdsMineRequiresAuth(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")

	rr := doRequest(server, http.MethodGet, "/api/ads?mine=true", "", "")

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestListAdsMineReturnsOwnAds(t *testing.T) {
	fs := &fakeStore{
		listAdsByOwnerFn: func(_ context.Context, ownerID string) ([]store.Ad, error) {
			if ownerID != "user-1" {
				t.Fatalf("expected user-1, got %s", ownerID)
			}
			return []store.Ad{{ID: "ad-1", OwnerID: "user-1", Title: "Radio"}}, nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	token := issueTestToken(t, svc, "user-1")

	rr := doRequest(server, http.MethodGet, "/api/ads?mine=true", token, "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	ads, ok := payload["ads"].([]any)
	if !ok || len(ads) != 1 {
		t.Fatalf("expected 1 ad, got %v", payload["ads"])
	}
}

func TestListAdsRejectsUnknownCategory(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")

	rr := doRequest(server, http.MethodGet, "/api/ads?category=vehicles", "", "")

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := parseBody(t, rr); payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected code VALIDATION_ERROR, got %v", payload["code"])
	}
}

func TestCreateAdReturnsCreated(t *testing.T) {
	fs := &fakeStore{
		getAdFn: func(_ context.Context, adID string) (store.Ad, error) {
			return store.Ad{ID: adID, OwnerID: "user-1", Title: "Radio", Category: "electronics", Condition: "used"}, nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	token := issueTestToken(t, svc, "user-1")

	rr := doRequest(server, http.MethodPost, "/api/ads", token,
		`{"title":"Radio","category":"electronics","condition":"used"}`)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	ad, ok := payload["ad"].(map[string]any)
	if !ok {
		t.Fatalf("expected ad payload, got %v", payload)
	}
	if ad["title"] != "Radio" {
		t.Fatalf("expected title Radio, got %v", ad["title"])
	}
}

func TestGetAdNotFound(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")

	rr := doRequest(server, http.MethodGet, "/api/ads/ad-missing", "", "")

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := parseBody(t, rr); payload["code"] != "AD_NOT_FOUND" {
		t.Fatalf("expected code AD_NOT_FOUND, got %v", payload["code"])
	}
}

func TestCreateProposalDuplicatePairStatusCode(t *testing.T) {
	fs := &fakeStore{
		getAdFn: adsByID(
			store.Ad{ID: "ad-1", OwnerID: "user-1"},
			store.Ad{ID: "ad-2", OwnerID: "user-2"},
		),
		proposalPairExistsFn: func(context.Context, string, string) (bool, error) {
			return true, nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	token := issueTestToken(t, svc, "user-1")

	rr := doRequest(server, http.MethodPost, "/api/proposals", token,
		`{"senderAdId":"ad-1","receiverAdId":"ad-2","comment":"swap?"}`)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := parseBody(t, rr); payload["code"] != "DUPLICATE_PAIR" {
		t.Fatalf("expected code DUPLICATE_PAIR, got %v", payload["code"])
	}
}

func TestProposalStatusMasksOutsiderOverHTTP(t *testing.T) {
	fs := &fakeStore{
		getProposalFn: func(_ context.Context, _ string) (store.Proposal, error) {
			return store.Proposal{ID: "prop-1", SenderAdID: "ad-1", ReceiverAdID: "ad-2", Status: store.ProposalStatusPending}, nil
		},
		getAdFn: adsByID(
			store.Ad{ID: "ad-1", OwnerID: "user-1"},
			store.Ad{ID: "ad-2", OwnerID: "user-2"},
		),
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	token := issueTestToken(t, svc, "user-3")

	rr := doRequest(server, http.MethodPost, "/api/proposals/prop-1/status", token,
		`{"status":"accepted"}`)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := parseBody(t, rr); payload["code"] != "NOT_FOUND" {
		t.Fatalf("expected code NOT_FOUND, got %v", payload["code"])
	}
}

func TestProposalStatusAcceptOverHTTP(t *testing.T) {
	fs := &fakeStore{
		getProposalFn: func(_ context.Context, _ string) (store.Proposal, error) {
			return store.Proposal{ID: "prop-1", SenderAdID: "ad-1", ReceiverAdID: "ad-2", Status: store.ProposalStatusPending}, nil
		},
		getAdFn: adsByID(
			store.Ad{ID: "ad-1", OwnerID: "user-1"},
			store.Ad{ID: "ad-2", OwnerID: "user-2"},
		),
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	token := issueTestToken(t, svc, "user-2")

	rr := doRequest(server, http.MethodPost, "/api/proposals/prop-1/status", token,
		`{"status":"accepted"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	proposal, ok := payload["proposal"].(map[string]any)
	if !ok {
		t.Fatalf("expected proposal payload, got %v", payload)
	}
	if proposal["status"] != store.ProposalStatusAccepted {
		t.Fatalf("expected accepted, got %v", proposal["status"])
	}
}

func TestListProposalsDefaultsToSentDirection(t *testing.T) {
	fs := &fakeStore{
		listProposalsFn: func(_ context.Context, direction, userID, status string) ([]store.Proposal, error) {
			if direction != store.DirectionSent {
				t.Fatalf("expected sent direction, got %s", direction)
			}
			if userID != "user-1" {
				t.Fatalf("expected user-1, got %s", userID)
			}
			return nil, nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	token := issueTestToken(t, svc, "user-1")

	rr := doRequest(server, http.MethodGet, "/api/proposals", token, "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSessionEndpointAnonymous(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")

	rr := doRequest(server, http.MethodGet, "/api/session", "", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := parseBody(t, rr); payload["authenticated"] != false {
		t.Fatalf("expected authenticated false, got %v", payload["authenticated"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")

	rr := doRequest(server, http.MethodGet, "/api/health", "", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestReadyEndpointReportsDatabaseFailure(t *testing.T) {
	fs := &fakeStoreWithPing{err: context.DeadlineExceeded}
	svc := newTestService(&fakeStore{})
	svc.store = fs
	server := NewHTTPServer(svc, "*")

	rr := doRequest(server, http.MethodGet, "/api/ready", "", "")

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := parseBody(t, rr); payload["status"] != "not_ready" {
		t.Fatalf("expected status not_ready, got %v", payload["status"])
	}
}

type fakeStoreWithPing struct {
	fakeStore
	err error
}

func (f *fakeStoreWithPing) Ping(context.Context) error { return f.err }
