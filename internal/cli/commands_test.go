package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/imadgeboyega/kiekky-matchmaking/internal/common/utils"
	"github.com/imadgeboyega/kiekky-matchmaking/internal/suggestion"
)

var created = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// tickingClock advances a millisecond per call so history timestamps stay distinct
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

type testApp struct {
	app  *App
	out  *bytes.Buffer
	repo *suggestion.MemoryRepository
	svc  suggestion.Service
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	color.NoColor = true

	repo := suggestion.NewMemoryRepository()
	svc := suggestion.NewService(repo, nil, suggestion.Options{Now: tickingClock(created)})

	out := &bytes.Buffer{}
	return &testApp{
		app: &App{
			Service:   svc,
			Repo:      repo,
			JWTSecret: "cli-secret",
			Now:       func() time.Time { return created.Add(72 * time.Hour) },
			Out:       out,
		},
		out:  out,
		repo: repo,
		svc:  svc,
	}
}

func (ta *testApp) run(args ...string) error {
	root := RootCmd(func(ctx context.Context) (*App, error) { return ta.app, nil })
	root.SetArgs(args)
	root.SetOut(ta.out)
	root.SetErr(ta.out)
	return root.Execute()
}

func (ta *testApp) create(t *testing.T, first, second int64) *suggestion.Suggestion {
	t.Helper()
	sg, err := ta.svc.CreateSuggestion(context.Background(), 1, &suggestion.CreateSuggestionRequest{
		FirstPartyID:  first,
		SecondPartyID: second,
		Status:        string(suggestion.StatusPendingFirstParty),
	})
	if err != nil {
		t.Fatalf("CreateSuggestion: %v", err)
	}
	return sg
}

func TestExpireCommand(t *testing.T) {
	ta := newTestApp(t)
	overdue := ta.create(t, 10, 20)

	if err := ta.run("expire"); err != nil {
		t.Fatalf("expire: %v\n%s", err, ta.out)
	}

	out := ta.out.String()
	if !strings.Contains(out, "EXPIRED "+overdue.ID.String()) {
		t.Errorf("output missing expired id:\n%s", out)
	}
	if !strings.Contains(out, "1 expired, 0 skipped, 0 failed") {
		t.Errorf("output missing summary:\n%s", out)
	}

	sg, err := ta.repo.Get(context.Background(), overdue.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sg.Status != suggestion.StatusExpired {
		t.Errorf("status = %s, want EXPIRED", sg.Status)
	}
}

func TestExpireCommandAsOf(t *testing.T) {
	ta := newTestApp(t)
	fresh := ta.create(t, 11, 21)

	// an hour after creation nothing is due
	if err := ta.run("expire", "--as-of", created.Add(time.Hour).Format(time.RFC3339)); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if !strings.Contains(ta.out.String(), "0 expired") {
		t.Errorf("output:\n%s", ta.out)
	}

	sg, _ := ta.repo.Get(context.Background(), fresh.ID)
	if sg.Status != suggestion.StatusPendingFirstParty {
		t.Errorf("status = %s, want unchanged", sg.Status)
	}

	if err := ta.run("expire", "--as-of", "yesterday"); err == nil {
		t.Error("expire accepted an invalid --as-of")
	}
}

func TestVerifyRanksCommandClean(t *testing.T) {
	ta := newTestApp(t)
	ta.create(t, 12, 22)

	if err := ta.run("verify-ranks"); err != nil {
		t.Fatalf("verify-ranks: %v", err)
	}
	if !strings.Contains(ta.out.String(), "densely ranked") {
		t.Errorf("output:\n%s", ta.out)
	}
}

func TestShowCommand(t *testing.T) {
	ta := newTestApp(t)
	sg := ta.create(t, 13, 23)

	if err := ta.run("show", sg.ID.String()); err != nil {
		t.Fatalf("show: %v", err)
	}

	out := ta.out.String()
	for _, want := range []string{"PENDING_FIRST_PARTY", "first=13 second=23 matchmaker=1", "Initial creation", "Version: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if err := ta.run("show", "not-a-uuid"); err == nil {
		t.Error("show accepted an invalid id")
	}
}

func TestTokenCommand(t *testing.T) {
	ta := newTestApp(t)
	// token expiry is checked against the wall clock
	ta.app.Now = time.Now

	if err := ta.run("token", "42", "--role", "matchmaker"); err != nil {
		t.Fatalf("token: %v", err)
	}

	claims, err := utils.ValidateJWT(strings.TrimSpace(ta.out.String()), "cli-secret")
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}
	if claims.UserID != 42 || claims.Role != "matchmaker" || claims.Type != "access" {
		t.Errorf("claims = %+v", claims)
	}

	if err := ta.run("token", "42", "--role", "wizard"); err == nil {
		t.Error("token accepted an unknown role")
	}
}

func TestLoaderErrorSurfaces(t *testing.T) {
	boom := errors.New("no database")
	root := RootCmd(func(ctx context.Context) (*App, error) { return nil, boom })
	root.SetArgs([]string{"verify-ranks"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	if err := root.Execute(); !errors.Is(err, boom) {
		t.Errorf("Execute() = %v, want loader error", err)
	}
}
