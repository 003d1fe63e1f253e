package suggestion

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/imadgeboyega/kiekky-matchmaking/internal/auth"
	"github.com/imadgeboyega/kiekky-matchmaking/internal/common/utils"
)

const testSecret = "handler-test-secret"

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type apiClient struct {
	t      *testing.T
	router *mux.Router
}

func newAPI(t *testing.T) (*apiClient, *fixture) {
	t.Helper()
	f := newFixture(t)
	router := mux.NewRouter()
	RegisterRoutes(router, NewHandler(f.svc), auth.NewMiddleware(testSecret))
	return &apiClient{t: t, router: router}, f
}

func token(t *testing.T, userID int64, role string) string {
	t.Helper()
	now := time.Now()
	tok, err := utils.GenerateJWT(&utils.JWTClaims{
		UserID:    userID,
		Role:      role,
		Type:      "access",
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	}, testSecret)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (c *apiClient) do(method, path, tok string, body interface{}) (int, apiResponse) {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatal(err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)

	var resp apiResponse
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			c.t.Fatalf("%s %s: undecodable body %q", method, path, rec.Body.String())
		}
	}
	return rec.Code, resp
}

func TestHandlersCreateAndRespond(t *testing.T) {
	api, _ := newAPI(t)
	mm := token(t, matchmaker, auth.RoleMatchmaker)
	first := token(t, 10, auth.RoleCandidate)
	second := token(t, 20, auth.RoleCandidate)

	code, resp := api.do("POST", "/api/v1/matchmaker/suggestions", mm, map[string]interface{}{
		"first_party_id":    10,
		"second_party_id":   20,
		"status":            "PENDING_FIRST_PARTY",
		"internal_notes":    "only for me",
		"first_party_notes": "you both love hiking",
	})
	if code != http.StatusCreated {
		t.Fatalf("create = %d %s", code, resp.Error)
	}

	var created struct {
		ID     string `json:"id"`
		Status Status `json:"status"`
		Notes  Notes  `json:"notes"`
	}
	if err := json.Unmarshal(resp.Data, &created); err != nil {
		t.Fatal(err)
	}
	if created.Notes.Internal != "only for me" {
		t.Errorf("matchmaker view lost internal notes: %+v", created.Notes)
	}

	code, resp = api.do("GET", "/api/v1/suggestions/"+created.ID, first, nil)
	if code != http.StatusOK {
		t.Fatalf("get = %d %s", code, resp.Error)
	}
	var view struct {
		Notes            Notes             `json:"notes"`
		Display          Label             `json:"display"`
		AvailableActions []AvailableAction `json:"available_actions"`
	}
	if err := json.Unmarshal(resp.Data, &view); err != nil {
		t.Fatal(err)
	}
	if view.Notes.Internal != "" || view.Notes.ForFirstParty != "you both love hiking" {
		t.Errorf("first party notes = %+v", view.Notes)
	}
	if view.Display.Label != "Awaiting your response" {
		t.Errorf("display label = %q", view.Display.Label)
	}
	if len(view.AvailableActions) != 3 {
		t.Errorf("available actions = %+v", view.AvailableActions)
	}

	respondPath := fmt.Sprintf("/api/v1/suggestions/%s/respond", created.ID)

	tests := []struct {
		name string
		tok  string
		body interface{}
		want int
	}{
		{"no token", "", map[string]string{"action": "approve"}, http.StatusUnauthorized},
		{"bad json", first, "{", http.StatusBadRequest},
		{"invalid action", first, map[string]string{"action": "maybe"}, http.StatusBadRequest},
		{"not your turn", second, map[string]string{"action": "approve"}, http.StatusBadRequest},
		{"outsider", token(t, 99, auth.RoleCandidate), map[string]string{"action": "approve"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, resp := api.do("POST", respondPath, tt.tok, tt.body); code != tt.want {
				t.Errorf("respond = %d (%s), want %d", code, resp.Error, tt.want)
			}
		})
	}

	code, resp = api.do("POST", respondPath, first, map[string]string{"action": "approve"})
	if code != http.StatusOK {
		t.Fatalf("approve = %d %s", code, resp.Error)
	}
	var result RespondResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		t.Fatal(err)
	}
	if result.Status != StatusPendingSecondParty || len(result.Steps) != 2 {
		t.Errorf("result = %+v", result)
	}

	code, resp = api.do("GET", fmt.Sprintf("/api/v1/suggestions/%s/history", created.ID), second, nil)
	if code != http.StatusOK {
		t.Fatalf("history = %d %s", code, resp.Error)
	}
	var history []StatusHistoryEntry
	if err := json.Unmarshal(resp.Data, &history); err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Errorf("history len = %d, want 3", len(history))
	}
}

func TestHandlersMatchmakerRoutesRequireRole(t *testing.T) {
	api, _ := newAPI(t)

	code, _ := api.do("POST", "/api/v1/matchmaker/suggestions", token(t, 10, auth.RoleCandidate), map[string]interface{}{
		"first_party_id": 10, "second_party_id": 20,
	})
	if code != http.StatusForbidden {
		t.Errorf("candidate create = %d, want 403", code)
	}

	code, _ = api.do("POST", "/api/v1/matchmaker/suggestions", token(t, 5, auth.RoleAdmin), map[string]interface{}{
		"first_party_id": 10, "second_party_id": 20,
	})
	if code != http.StatusCreated {
		t.Errorf("admin create = %d, want 201", code)
	}

	code, resp := api.do("POST", "/api/v1/matchmaker/suggestions", token(t, matchmaker, auth.RoleMatchmaker), map[string]interface{}{
		"first_party_id": 10, "second_party_id": 10,
	})
	if code != http.StatusBadRequest {
		t.Errorf("same party create = %d (%s), want 400", code, resp.Error)
	}
}

func TestHandlersOverrideAndPriority(t *testing.T) {
	api, f := newAPI(t)
	mm := token(t, matchmaker, auth.RoleMatchmaker)
	sg := f.create(t, 10, 20)

	statusPath := fmt.Sprintf("/api/v1/matchmaker/suggestions/%s/status", sg.ID)

	code, resp := api.do("POST", statusPath, mm, map[string]interface{}{"status": "CANCELLED", "reason": "Party asked to pause"})
	if code != http.StatusOK {
		t.Fatalf("override = %d %s", code, resp.Error)
	}

	code, _ = api.do("POST", statusPath, mm, map[string]interface{}{"status": "DATING"})
	if code != http.StatusBadRequest {
		t.Errorf("reopen without force = %d, want 400", code)
	}

	code, _ = api.do("POST", statusPath, token(t, 77, auth.RoleMatchmaker), map[string]interface{}{"status": "DATING", "force": true})
	if code != http.StatusForbidden {
		t.Errorf("other matchmaker override = %d, want 403", code)
	}

	code, _ = api.do("PUT", fmt.Sprintf("/api/v1/matchmaker/suggestions/%s/priority", sg.ID), mm, map[string]string{"priority": "HIGH"})
	if code != http.StatusOK {
		t.Errorf("priority = %d", code)
	}
	if f.load(t, sg.ID).Priority != PriorityHigh {
		t.Error("priority not stored")
	}

	code, _ = api.do("POST", "/api/v1/matchmaker/suggestions/not-a-uuid/status", mm, map[string]string{"status": "DATING"})
	if code != http.StatusBadRequest {
		t.Errorf("bad id = %d, want 400", code)
	}
}

func TestHandlersReads(t *testing.T) {
	api, f := newAPI(t)
	first := token(t, 10, auth.RoleCandidate)
	sg := f.create(t, 10, 20)
	f.respond(t, sg.ID, 10, ActionInterested)

	code, resp := api.do("GET", "/api/v1/suggestions/waitlist", first, nil)
	if code != http.StatusOK {
		t.Fatalf("waitlist = %d %s", code, resp.Error)
	}
	var entries []WaitlistEntry
	if err := json.Unmarshal(resp.Data, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Rank != 1 {
		t.Errorf("waitlist = %+v", entries)
	}

	code, _ = api.do("GET", "/api/v1/suggestions", first, nil)
	if code != http.StatusOK {
		t.Errorf("list = %d", code)
	}
	code, _ = api.do("GET", "/api/v1/suggestions/stats", first, nil)
	if code != http.StatusOK {
		t.Errorf("stats = %d", code)
	}

	code, _ = api.do("GET", "/api/v1/suggestions/"+sg.ID.String(), token(t, 20, auth.RoleCandidate), nil)
	if code != http.StatusNotFound {
		t.Errorf("unsent second party get = %d, want 404", code)
	}

	code, _ = api.do("GET", "/api/v1/suggestions/not-a-uuid", first, nil)
	if code != http.StatusBadRequest {
		t.Errorf("bad id = %d, want 400", code)
	}
}

func TestHandlersStatusFilter(t *testing.T) {
	api, f := newAPI(t)
	first := token(t, 10, auth.RoleCandidate)
	mm := token(t, matchmaker, auth.RoleMatchmaker)
	f.create(t, 10, 20)

	tests := []struct {
		name string
		path string
		tok  string
		code int
		rows int
	}{
		{"matching status", "/api/v1/suggestions?status=PENDING_FIRST_PARTY", first, http.StatusOK, 1},
		{"other status", "/api/v1/suggestions?status=DATING,CANCELLED", first, http.StatusOK, 0},
		{"empty entries ignored", "/api/v1/suggestions?status=PENDING_FIRST_PARTY,,", first, http.StatusOK, 1},
		{"unknown status", "/api/v1/suggestions?status=BOGUS", first, http.StatusBadRequest, 0},
		{"unknown among valid", "/api/v1/suggestions?status=DATING,bogus", first, http.StatusBadRequest, 0},
		{"matchmaker unknown status", "/api/v1/matchmaker/suggestions?status=BOGUS", mm, http.StatusBadRequest, 0},
		{"matchmaker matching status", "/api/v1/matchmaker/suggestions?status=PENDING_FIRST_PARTY", mm, http.StatusOK, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := api.do("GET", tt.path, tt.tok, nil)
			if code != tt.code {
				t.Fatalf("code = %d, want %d (%s)", code, tt.code, resp.Error)
			}
			if code != http.StatusOK || tt.rows < 0 {
				return
			}
			var list []SuggestionView
			if err := json.Unmarshal(resp.Data, &list); err != nil {
				t.Fatal(err)
			}
			if len(list) != tt.rows {
				t.Errorf("rows = %d, want %d", len(list), tt.rows)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrNotFound, http.StatusNotFound},
		{reject(ErrUnauthorized, "x"), http.StatusForbidden},
		{reject(ErrIllegalTransition, "x"), http.StatusBadRequest},
		{reject(ErrInvalidInput, "x"), http.StatusBadRequest},
		{reject(ErrConflict, "x"), http.StatusConflict},
		{reject(ErrActiveProcess, "x"), http.StatusConflict},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
