package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/ValenteCreativo/carepilot/internal/actions"
	"github.com/ValenteCreativo/carepilot/internal/convo"
	"github.com/ValenteCreativo/carepilot/internal/llm"
	"github.com/ValenteCreativo/carepilot/internal/pipeline"
	"github.com/ValenteCreativo/carepilot/internal/storage"
	"github.com/ValenteCreativo/carepilot/internal/trace"
)

const (
	testCronToken = "cron-token-12345"
	testSecret    = "session-secret-for-tests"
)

const criticJSON = `{
  "goals":[{"title":"Keep mom safe at night"}],
  "actions":[
    {"title":"Daily evening call","time_minutes":10,"cost_usd":0,"effort":"low","steps":["call at 8pm"]}
  ],
  "weekly_rhythm":["day 1: routine"],
  "safety_notes":["call doctor if confusion worsens"],
  "change_log":["dropped door alarm: over budget"]
}`

type scriptedProvider struct{}

func (scriptedProvider) Name() string { return "scripted" }

func (scriptedProvider) Generate(ctx context.Context, p string) (llm.Result, error) {
	var content string
	switch {
	case strings.Contains(p, "triage assistant"):
		content = `{"red_flags":["wandering at night"],"disclaimers":["not medical advice"],"must_do_now":[]}`
	case strings.Contains(p, "Build a 7-day care plan"), strings.Contains(p, "reviewing a 7-day care plan"):
		content = criticJSON
	case strings.Contains(p, "verdict"):
		content = `{"verdict":"pass"}`
	case strings.Contains(p, "Score this care plan"):
		content = `{"score":4}`
	default:
		return llm.Result{}, errors.New("unexpected prompt")
	}
	return llm.Result{Content: content, Model: "test-model", LatencyMs: 3}, nil
}

type nopSender struct{}

func (nopSender) Send(ctx context.Context, to, body string) (string, error) { return "SMout", nil }

type testApp struct {
	handler http.Handler
	store   *storage.Store
	orch    *pipeline.Orchestrator
}

func setupApp(t *testing.T, twilioToken string) testApp {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	orch := pipeline.NewOrchestrator(store, llm.NewGatewayWithProvider(scriptedProvider{}), trace.New("test", ""))
	gen := actions.NewGenerator(store)
	exec := actions.NewExecutor(store, nopSender{})

	handler := NewAppHandler(AppDeps{
		Store:           store,
		Orchestrator:    orch,
		Generator:       gen,
		Executor:        exec,
		Convo:           convo.NewHandler(store, orch, gen, exec),
		SessionSecret:   []byte(testSecret),
		CronToken:       testCronToken,
		TwilioAuthToken: twilioToken,
	})
	return testApp{handler: handler, store: store, orch: orch}
}

func (a testApp) do(t *testing.T, method, path, body, cookie string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: cookie})
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

// register creates a user and returns the session cookie value.
func (a testApp) register(t *testing.T, email, phone string) string {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":"hunter2-long","phone":%q}`, email, phone)
	rr := a.do(t, http.MethodPost, "/api/v1/auth/register", body, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body = %s", rr.Code, rr.Body.String())
	}
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookie {
			return c.Value
		}
	}
	t.Fatal("register did not set session cookie")
	return ""
}

func (a testApp) createCase(t *testing.T, cookie string) string {
	t.Helper()
	body := `{"summary":"Mom has early dementia and lives alone","time_per_week_hours":2,"budget_per_week_usd":40,"energy":2}`
	rr := a.do(t, http.MethodPost, "/api/v1/cases", body, cookie)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create case status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp caseResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.ID
}

func TestAuthFlow(t *testing.T) {
	app := setupApp(t, "")

	cookie := app.register(t, "ana@example.com", "whatsapp:+15550001111")

	rr := app.do(t, http.MethodGet, "/api/v1/me", "", cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("me status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var me userResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &me); err != nil {
		t.Fatal(err)
	}
	if me.Email != "ana@example.com" || me.OnboardingState != "not_started" {
		t.Errorf("me = %+v", me)
	}

	if rr := app.do(t, http.MethodGet, "/api/v1/me", "", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("no cookie: status = %d, want 401", rr.Code)
	}
	if rr := app.do(t, http.MethodGet, "/api/v1/me", "", "garbage-token"); rr.Code != http.StatusUnauthorized {
		t.Errorf("bad cookie: status = %d, want 401", rr.Code)
	}

	// Duplicate email rejected.
	rr = app.do(t, http.MethodPost, "/api/v1/auth/register", `{"email":"ana@example.com","password":"x-long-enough"}`, "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("duplicate register status = %d, want 400", rr.Code)
	}

	rr = app.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"ana@example.com","password":"hunter2-long"}`, "")
	if rr.Code != http.StatusOK {
		t.Errorf("login status = %d, body = %s", rr.Code, rr.Body.String())
	}
	rr = app.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"ana@example.com","password":"wrong"}`, "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", rr.Code)
	}
	var envelope map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil || envelope["message"] == "" {
		t.Errorf("error envelope = %s", rr.Body.String())
	}
}

func TestCaseCRUDAndOwnership(t *testing.T) {
	app := setupApp(t, "")
	ana := app.register(t, "ana@example.com", "")
	bea := app.register(t, "bea@example.com", "")

	caseID := app.createCase(t, ana)

	rr := app.do(t, http.MethodGet, "/api/v1/cases/"+caseID, "", ana)
	if rr.Code != http.StatusOK {
		t.Fatalf("get case status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var got caseResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.TimePerWeekHours != 2 || got.BudgetPerWeekUSD != 40 || got.Energy != 2 {
		t.Errorf("case = %+v", got)
	}

	// Another user's session sees 404, not 403.
	if rr := app.do(t, http.MethodGet, "/api/v1/cases/"+caseID, "", bea); rr.Code != http.StatusNotFound {
		t.Errorf("foreign get status = %d, want 404", rr.Code)
	}

	rr = app.do(t, http.MethodPatch, "/api/v1/cases/"+caseID,
		`{"budget_per_week_usd":80,"risk_flags":["fall_risk"]}`, ana)
	if rr.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.BudgetPerWeekUSD != 80 {
		t.Errorf("budget after patch = %v", got.BudgetPerWeekUSD)
	}
	if !reflect.DeepEqual(got.RiskFlags, []string{"fall_risk"}) {
		t.Errorf("risk flags after patch = %v", got.RiskFlags)
	}
	// Untouched fields survive a partial patch.
	if got.Summary != "Mom has early dementia and lives alone" {
		t.Errorf("summary after patch = %q", got.Summary)
	}

	if rr := app.do(t, http.MethodPost, "/api/v1/cases", `{"summary":""}`, ana); rr.Code != http.StatusBadRequest {
		t.Errorf("empty summary status = %d, want 400", rr.Code)
	}
	if rr := app.do(t, http.MethodPost, "/api/v1/cases", `{"summary":"x","energy":9}`, ana); rr.Code != http.StatusBadRequest {
		t.Errorf("energy out of range status = %d, want 400", rr.Code)
	}

	rr = app.do(t, http.MethodGet, "/api/v1/cases", "", ana)
	var list []caseResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("cases for ana = %d, want 1", len(list))
	}
}

func TestPlanGenerationEndpoint(t *testing.T) {
	app := setupApp(t, "")
	cookie := app.register(t, "ana@example.com", "whatsapp:+15550001111")
	caseID := app.createCase(t, cookie)

	rr := app.do(t, http.MethodPost, "/api/v1/cases/"+caseID+"/plans", "", cookie)
	app.orch.Wait()
	if rr.Code != http.StatusCreated {
		t.Fatalf("create plan status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp generateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}

	// The reviewed plan reaches the caller unchanged.
	var want pipeline.PlanDoc
	if err := json.Unmarshal([]byte(criticJSON), &want); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(resp.Plan, want) {
		t.Errorf("plan diverged:\ngot  %+v\nwant %+v", resp.Plan, want)
	}
	if len(resp.Triage.RedFlags) != 1 {
		t.Errorf("triage = %+v", resp.Triage)
	}
	// One cheap low-effort action: seven check-in prompts, no reminders,
	// all pending until the dashboard approves them.
	if len(resp.ActionIDs) != 7 {
		t.Fatalf("action ids = %d, want 7", len(resp.ActionIDs))
	}
	for _, id := range resp.ActionIDs {
		a, err := app.store.GetAction(id)
		if err != nil {
			t.Fatal(err)
		}
		if a.Status != storage.ActionPending {
			t.Errorf("action %s status = %q, want pending", id, a.Status)
		}
	}

	rr = app.do(t, http.MethodGet, "/api/v1/cases/"+caseID+"/plans/latest", "", cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("latest plan status = %d", rr.Code)
	}
	var latest planResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &latest); err != nil {
		t.Fatal(err)
	}
	if latest.ID != resp.PlanID {
		t.Errorf("latest plan id = %s, want %s", latest.ID, resp.PlanID)
	}

	rr = app.do(t, http.MethodGet, "/api/v1/cases/"+caseID+"/plans", "", cookie)
	var plans []planResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &plans); err != nil {
		t.Fatal(err)
	}
	if len(plans) != 1 {
		t.Errorf("plans = %d, want 1", len(plans))
	}
}

func TestActionApproveReject(t *testing.T) {
	app := setupApp(t, "")
	cookie := app.register(t, "ana@example.com", "whatsapp:+15550001111")
	caseID := app.createCase(t, cookie)

	rr := app.do(t, http.MethodPost, "/api/v1/cases/"+caseID+"/plans", "", cookie)
	app.orch.Wait()
	var resp generateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	first, second := resp.ActionIDs[0], resp.ActionIDs[1]

	rr = app.do(t, http.MethodPost, "/api/v1/actions/"+first+"/approve", "", cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("approve status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var a actionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &a); err != nil {
		t.Fatal(err)
	}
	if a.Status != "approved" || a.ApprovedAt == "" {
		t.Errorf("approved action = %+v", a)
	}

	rr = app.do(t, http.MethodPost, "/api/v1/actions/"+second+"/reject", "", cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("reject status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &a); err != nil {
		t.Fatal(err)
	}
	if a.Status != "failed" || a.FailureReason != "Rejected by user" {
		t.Errorf("rejected action = %+v", a)
	}

	// A rejected action cannot be approved afterwards.
	if rr := app.do(t, http.MethodPost, "/api/v1/actions/"+second+"/approve", "", cookie); rr.Code != http.StatusBadRequest {
		t.Errorf("approve rejected status = %d, want 400", rr.Code)
	}
	if rr := app.do(t, http.MethodPost, "/api/v1/actions/no-such-id/approve", "", cookie); rr.Code != http.StatusNotFound {
		t.Errorf("approve missing status = %d, want 404", rr.Code)
	}

	rr = app.do(t, http.MethodGet, "/api/v1/cases/"+caseID+"/actions", "", cookie)
	var list []actionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 7 {
		t.Errorf("actions = %d, want 7", len(list))
	}
}

func TestCheckinsAndFeedback(t *testing.T) {
	app := setupApp(t, "")
	cookie := app.register(t, "ana@example.com", "whatsapp:+15550001111")
	caseID := app.createCase(t, cookie)

	rr := app.do(t, http.MethodPost, "/api/v1/checkins",
		`{"action_ref":"day-1","done":true,"stress":2,"cost_usd":12.5,"notes":"went fine"}`, cookie)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create checkin status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if rr := app.do(t, http.MethodPost, "/api/v1/checkins", `{"stress":9}`, cookie); rr.Code != http.StatusBadRequest {
		t.Errorf("invalid stress status = %d, want 400", rr.Code)
	}

	rr = app.do(t, http.MethodGet, "/api/v1/checkins?action_ref=day-1", "", cookie)
	var checkins []checkinResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &checkins); err != nil {
		t.Fatal(err)
	}
	if len(checkins) != 1 || checkins[0].Stress != 2 || !checkins[0].Done {
		t.Errorf("checkins = %+v", checkins)
	}

	genRR := app.do(t, http.MethodPost, "/api/v1/cases/"+caseID+"/plans", "", cookie)
	app.orch.Wait()
	var gen generateResponse
	if err := json.Unmarshal(genRR.Body.Bytes(), &gen); err != nil {
		t.Fatal(err)
	}

	rr = app.do(t, http.MethodPost, "/api/v1/feedback",
		fmt.Sprintf(`{"plan_id":%q,"rating":4,"comment":"helpful"}`, gen.PlanID), cookie)
	if rr.Code != http.StatusCreated {
		t.Errorf("feedback status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if rr := app.do(t, http.MethodPost, "/api/v1/feedback", `{"plan_id":"nope","rating":4}`, cookie); rr.Code != http.StatusNotFound {
		t.Errorf("feedback for missing plan status = %d, want 404", rr.Code)
	}

	rr = app.do(t, http.MethodGet, "/api/v1/analytics", "", cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("analytics status = %d", rr.Code)
	}
	var stats analyticsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Users != 1 || stats.Cases != 1 || stats.Plans != 1 || stats.Checkins != 1 {
		t.Errorf("analytics = %+v", stats)
	}
	if stats.ActionsByStatus["pending"] != 7 {
		t.Errorf("pending actions = %d, want 7", stats.ActionsByStatus["pending"])
	}
	if stats.AvgStress != 2 {
		t.Errorf("avg stress = %v, want 2", stats.AvgStress)
	}
}

func TestWebhookWithoutSignatureCheck(t *testing.T) {
	app := setupApp(t, "")

	form := url.Values{
		"From":       {"whatsapp:+15550002222"},
		"Body":       {"hi"},
		"MessageSid": {"SM100"},
	}
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("webhook status = %d, body = %s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	if !strings.Contains(body, "<Response><Message>") {
		t.Errorf("not TwiML: %s", body)
	}
	if !strings.Contains(body, "Tell me about your situation") {
		t.Errorf("unexpected first reply: %s", body)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("content type = %q", ct)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	app := setupApp(t, "twilio-auth-token")

	form := url.Values{"From": {"whatsapp:+15550002222"}, "Body": {"hi"}, "MessageSid": {"SM100"}}
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", "bogus")
	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("bad signature status = %d, want 401", rr.Code)
	}
}

func TestWebhookAcceptsValidSignature(t *testing.T) {
	const token = "twilio-auth-token"
	app := setupApp(t, token)

	form := url.Values{"From": {"whatsapp:+15550002222"}, "Body": {"hi"}, "MessageSid": {"SM100"}}
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	sig := twilioSign(token, "http://"+req.Host+"/webhook/whatsapp", form)
	req.Header.Set("X-Twilio-Signature", sig)
	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("valid signature status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "<Response><Message>") {
		t.Errorf("not TwiML: %s", rr.Body.String())
	}
}

func twilioSign(token, url string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(url))
	for _, k := range keys {
		mac.Write([]byte(k + form.Get(k)))
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestCronEndpointAuth(t *testing.T) {
	app := setupApp(t, "")

	req := httptest.NewRequest(http.MethodPost, "/internal/cron/execute-actions", nil)
	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/internal/cron/execute-actions", nil)
	req.Header.Set("Authorization", "Bearer "+testCronToken)
	rr = httptest.NewRecorder()
	app.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("cron status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var stats actions.SweepStats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Selected != 0 {
		t.Errorf("sweep on empty store selected %d", stats.Selected)
	}
}
