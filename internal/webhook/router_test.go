package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"ahorro/internal/core"
	"ahorro/internal/ports"
	"ahorro/internal/services"
	"ahorro/internal/storage/memory"
)

const testKey = "s3cret"

var alice = core.Profile{ID: "u-alice", Email: "Alice@Example.com", Name: "Alice"}

func newTestRouter(t *testing.T) (*Router, *memory.Store) {
	t.Helper()
	store := memory.New(alice, core.Profile{ID: "u-bob", Email: "bob@example.com"})
	return NewRouter(testKey, store, services.NewLedger(store, nil), services.NewReporting(store)), store
}

// call runs body through the router and returns the status and the body as
// it would appear on the wire.
func call(t *testing.T, r *Router, key, body string) (int, map[string]any) {
	t.Helper()
	resp := r.Handle(context.Background(), key, []byte(body))
	raw, err := json.Marshal(resp.Body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	return resp.Status, out
}

func countTransactions(t *testing.T, store *memory.Store, userID string) int {
	t.Helper()
	txs, err := store.ListTransactions(context.Background(), userID, ports.TransactionFilter{})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	return len(txs)
}

func TestRouter_Auth(t *testing.T) {
	r, _ := newTestRouter(t)
	body := `{"action":"get_balance","user_id":"u-alice"}`

	tests := []struct {
		name string
		key  string
		want int
	}{
		{"missing key", "", http.StatusUnauthorized},
		{"wrong key", "nope", http.StatusUnauthorized},
		{"prefix of key", "s3cre", http.StatusUnauthorized},
		{"valid key", testKey, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, out := call(t, r, tt.key, body)
			if status != tt.want {
				t.Errorf("status = %d, want %d (%v)", status, tt.want, out)
			}
			if (status == http.StatusOK) != (out["ok"] == true) {
				t.Errorf("ok flag = %v for status %d", out["ok"], status)
			}
		})
	}
}

func TestRouter_EmptySecretFailsClosed(t *testing.T) {
	store := memory.New(alice)
	r := NewRouter("", store, services.NewLedger(store, nil), services.NewReporting(store))

	for _, key := range []string{"", "anything"} {
		status, _ := call(t, r, key, `{"action":"get_balance","user_id":"u-alice"}`)
		if status != http.StatusUnauthorized {
			t.Errorf("key %q: status = %d, want 401", key, status)
		}
	}
}

func TestRouter_BadRequests(t *testing.T) {
	r, store := newTestRouter(t)

	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"invalid json", `{"action":`, ""},
		{"amount zero", `{"user_id":"u-alice","type":"expense","amount":0,"description":"x"}`, "amount"},
		{"negative amount", `{"user_id":"u-alice","type":"expense","amount":-5}`, "amount"},
		{"missing amount", `{"user_id":"u-alice","type":"income"}`, "amount"},
		{"bad type", `{"user_id":"u-alice","type":"transfer","amount":10}`, "type"},
		{"text without amount", `{"user_id":"u-alice","text":"compré algo"}`, "amount"},
		{"goal without target", `{"action":"create_goal","user_id":"u-alice","name":"Trip"}`, "target_amount"},
		{"deposit without goal", `{"action":"deposit_to_goal","user_id":"u-alice","amount":10}`, "goal_id"},
		{"month out of range", `{"action":"get_month_summary","user_id":"u-alice","month":13}`, "month"},
		{"no user", `{"action":"get_balance"}`, "user_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, out := call(t, r, testKey, tt.body)
			if status != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (%v)", status, out)
			}
			if out["ok"] != false {
				t.Errorf("ok = %v", out["ok"])
			}
			if tt.wantField == "" {
				return
			}
			fields, _ := out["fields"].([]any)
			found := false
			for _, f := range fields {
				if f == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("fields = %v, want %q", out["fields"], tt.wantField)
			}
		})
	}

	if n := countTransactions(t, store, "u-alice"); n != 0 {
		t.Errorf("rejected requests persisted %d transactions", n)
	}
}

func TestRouter_UnsupportedAction(t *testing.T) {
	r, _ := newTestRouter(t)

	status, out := call(t, r, testKey, `{"action":"transfer_funds","user_id":"u-alice"}`)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if out["action"] != "transfer_funds" || !strings.Contains(out["error"].(string), "transfer_funds") {
		t.Errorf("body does not name the action: %v", out)
	}
}

func TestRouter_UserResolution(t *testing.T) {
	r, _ := newTestRouter(t)

	tests := []struct {
		name     string
		body     string
		want     int
		wantUser string
	}{
		{"by id", `{"user_id":"u-bob","amount":10}`, http.StatusCreated, "u-bob"},
		{"unknown id", `{"user_id":"ghost","amount":10}`, http.StatusNotFound, ""},
		{"exact email", `{"email":"bob@example.com","amount":10}`, http.StatusCreated, "u-bob"},
		{"email differs in case", `{"email":"alice@example.COM","amount":10}`, http.StatusCreated, "u-alice"},
		{"email with spaces", `{"email":"  ALICE@example.com ","amount":10}`, http.StatusCreated, "u-alice"},
		{"unknown email", `{"email":"carol@example.com","amount":10}`, http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, out := call(t, r, testKey, tt.body)
			if status != tt.want {
				t.Fatalf("status = %d, want %d (%v)", status, tt.want, out)
			}
			if tt.wantUser == "" {
				return
			}
			tx := out["transaction"].(map[string]any)
			if tx["user_id"] != tt.wantUser {
				t.Errorf("user_id = %v, want %s", tx["user_id"], tt.wantUser)
			}
		})
	}
}

func TestRouter_AddTransactionStructured(t *testing.T) {
	r, store := newTestRouter(t)

	status, out := call(t, r, testKey,
		`{"user_id":"u-alice","type":"Income","amount":"2500,50","category":"Salary","description":"April pay","date":"2025-04-01"}`)
	if status != http.StatusCreated {
		t.Fatalf("status = %d (%v)", status, out)
	}
	tx := out["transaction"].(map[string]any)
	if tx["type"] != "income" || tx["amount"] != 2500.5 || tx["date"] != "2025-04-01" {
		t.Errorf("transaction = %v", tx)
	}
	if _, ok := out["parsed"]; ok {
		t.Errorf("structured request should not report parsed text")
	}
	if n := countTransactions(t, store, "u-alice"); n != 1 {
		t.Errorf("stored %d transactions, want 1", n)
	}
}

func TestRouter_AddTransactionFromText(t *testing.T) {
	r, _ := newTestRouter(t)

	status, out := call(t, r, testKey, `{"action":"add_transaction","user_id":"u-alice","text":"Gasté 1500 en comida"}`)
	if status != http.StatusCreated {
		t.Fatalf("status = %d (%v)", status, out)
	}
	tx := out["transaction"].(map[string]any)
	if tx["type"] != "expense" || tx["amount"] != 1500.0 || tx["category"] != "Food" {
		t.Errorf("transaction = %v", tx)
	}
	if out["type_detected"] != true {
		t.Errorf("type_detected = %v", out["type_detected"])
	}
	parsed := out["parsed"].(map[string]any)
	if parsed["description"] != "Gasté 1500 en comida" {
		t.Errorf("parsed = %v", parsed)
	}
}

func TestRouter_GoalLifecycle(t *testing.T) {
	r, store := newTestRouter(t)
	ctx := context.Background()

	status, out := call(t, r, testKey, `{"action":"create_goal","user_id":"u-alice","name":"Viaje a Japón","target_amount":1000,"target_date":"2026-12-31"}`)
	if status != http.StatusCreated {
		t.Fatalf("create_goal status = %d (%v)", status, out)
	}
	goal := out["goal"].(map[string]any)
	goalID := goal["id"].(string)

	// A transaction whose description names the goal feeds it.
	status, out = call(t, r, testKey, `{"user_id":"u-alice","type":"income","amount":300,"description":"  VIAJE A JAPÓN "}`)
	if status != http.StatusCreated {
		t.Fatalf("add_transaction status = %d (%v)", status, out)
	}
	updated := out["goal_updated"].(map[string]any)
	if updated["current_amount"] != 300.0 {
		t.Errorf("goal_updated = %v", updated)
	}

	status, out = call(t, r, testKey, `{"action":"deposit_to_goal","user_id":"u-alice","goal_name":"viaje a japón","amount":900}`)
	if status != http.StatusOK {
		t.Fatalf("deposit status = %d (%v)", status, out)
	}
	goal = out["goal"].(map[string]any)
	if goal["current_amount"] != 1000.0 || goal["completed"] != true {
		t.Errorf("deposit should clamp at target: %v", goal)
	}
	tx := out["transaction"].(map[string]any)
	if tx["category"] != core.SavingsCategory || tx["amount"] != 900.0 || tx["description"] != "Deposit to Viaje a Japón" {
		t.Errorf("linked expense = %v", tx)
	}

	status, out = call(t, r, testKey, `{"action":"deposit_to_goal","user_id":"u-alice","goal_id":"`+goalID+`","amount":5,"create_expense_tx":false}`)
	if status != http.StatusOK {
		t.Fatalf("deposit by id status = %d (%v)", status, out)
	}
	if _, ok := out["transaction"]; ok {
		t.Errorf("create_expense_tx=false still produced a transaction")
	}

	status, out = call(t, r, testKey, `{"action":"list_goals","email":"alice@example.com"}`)
	if status != http.StatusOK || out["count"] != 1.0 {
		t.Fatalf("list_goals = %d %v", status, out)
	}

	status, _ = call(t, r, testKey, `{"action":"delete_goal","user_id":"u-alice","goal_id":"`+goalID+`"}`)
	if status != http.StatusOK {
		t.Fatalf("delete_goal status = %d", status)
	}
	if goals, _ := store.ListGoals(ctx, "u-alice"); len(goals) != 0 {
		t.Errorf("goal not deleted: %v", goals)
	}
}

func TestRouter_DepositUnknownGoal(t *testing.T) {
	r, store := newTestRouter(t)
	ctx := context.Background()

	g, err := store.CreateGoal(ctx, core.SavingsGoal{UserID: "u-alice", Name: "Car", Target: core.Money{Cents: 100000}, Current: core.Money{Cents: 1000}})
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	status, out := call(t, r, testKey, `{"action":"deposit_to_goal","user_id":"u-alice","goal_name":"Boat","amount":50}`)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 (%v)", status, out)
	}

	// Goals belong to their owner.
	status, _ = call(t, r, testKey, `{"action":"deposit_to_goal","user_id":"u-bob","goal_id":"`+g.ID+`","amount":50}`)
	if status != http.StatusNotFound {
		t.Errorf("cross-user deposit status = %d, want 404", status)
	}

	after, _ := store.GetGoal(ctx, "u-alice", g.ID)
	if after.Current != g.Current {
		t.Errorf("goal mutated: %v -> %v", g.Current, after.Current)
	}
	if n := countTransactions(t, store, "u-alice"); n != 0 {
		t.Errorf("failed deposit recorded %d transactions", n)
	}
}

func TestRouter_Reports(t *testing.T) {
	r, store := newTestRouter(t)
	ctx := context.Background()
	today := core.DateOf(time.Now())

	seed := []core.Transaction{
		{Type: core.Income, Amount: core.Money{Cents: 200000}, Category: core.DefaultCategory, Description: "Salary", Date: today},
		{Type: core.Expense, Amount: core.Money{Cents: 70000}, Category: "Home", Description: "Rent", Date: today},
		{Type: core.Expense, Amount: core.Money{Cents: 10000}, Category: "Food", Description: "Market", Date: today},
		{Type: core.Expense, Amount: core.Money{Cents: 5000}, Category: "Food", Description: "Old", Date: core.NewDate(2024, 1, 15)},
	}
	for _, tx := range seed {
		tx.UserID = "u-alice"
		if _, err := store.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	t.Run("list_transactions", func(t *testing.T) {
		status, out := call(t, r, testKey, `{"action":"list_transactions","user_id":"u-alice","limit":2}`)
		if status != http.StatusOK || out["count"] != 2.0 {
			t.Fatalf("got %d %v", status, out)
		}
		status, out = call(t, r, testKey, `{"action":"list_transactions","user_id":"u-alice","year":2024,"month":1}`)
		if status != http.StatusOK || out["count"] != 1.0 {
			t.Fatalf("january 2024: got %d %v", status, out)
		}
	})

	t.Run("get_balance", func(t *testing.T) {
		status, out := call(t, r, testKey, `{"action":"get_balance","user_id":"u-alice"}`)
		if status != http.StatusOK {
			t.Fatalf("status = %d", status)
		}
		if out["income"] != 2000.0 || out["expenses"] != 800.0 || out["balance"] != 1200.0 {
			t.Errorf("balance = %v", out)
		}
	})

	t.Run("get_month_summary", func(t *testing.T) {
		status, out := call(t, r, testKey, `{"action":"get_month_summary","user_id":"u-alice","year":2024,"month":1}`)
		if status != http.StatusOK {
			t.Fatalf("status = %d", status)
		}
		summary := out["summary"].(map[string]any)
		if summary["expenses"] != 50.0 {
			t.Errorf("summary = %v", summary)
		}
	})

	t.Run("check_spending_alerts", func(t *testing.T) {
		status, out := call(t, r, testKey, `{"action":"check_spending_alerts","user_id":"u-alice"}`)
		if status != http.StatusOK {
			t.Fatalf("status = %d", status)
		}
		alerts := out["report"].(map[string]any)["alerts"].([]any)
		if len(alerts) != 1 || alerts[0].(map[string]any)["level"] != "urgent" {
			t.Errorf("alerts = %v", alerts)
		}
	})

	t.Run("advise_expense", func(t *testing.T) {
		status, out := call(t, r, testKey, `{"action":"advise_expense","user_id":"u-alice","amount":5000,"category":"Travel"}`)
		if status != http.StatusOK {
			t.Fatalf("status = %d", status)
		}
		if advice := out["advice"].(map[string]any); advice["recommendation"] != "deny" {
			t.Errorf("advice = %v", advice)
		}
	})

	t.Run("suggest_saving_methods", func(t *testing.T) {
		status, out := call(t, r, testKey, `{"action":"suggest_saving_methods","user_id":"u-alice"}`)
		if status != http.StatusOK || len(out["methods"].([]any)) != 4 {
			t.Fatalf("got %d %v", status, out)
		}
	})

	t.Run("forecast_cashflow", func(t *testing.T) {
		status, out := call(t, r, testKey, `{"action":"forecast_cashflow","user_id":"u-alice"}`)
		if status != http.StatusOK {
			t.Fatalf("status = %d", status)
		}
		if _, ok := out["forecast"].(map[string]any)["projected_balance"]; !ok {
			t.Errorf("forecast = %v", out)
		}
	})
}

type brokenDirectory struct {
	*memory.Store
}

func (brokenDirectory) GetProfile(context.Context, string) (core.Profile, error) {
	return core.Profile{}, errors.New("connection refused")
}

func TestRouter_StoreFailureIs500(t *testing.T) {
	store := memory.New(alice)
	r := NewRouter(testKey, brokenDirectory{store}, services.NewLedger(store, nil), services.NewReporting(store))

	status, out := call(t, r, testKey, `{"action":"get_balance","user_id":"u-alice"}`)
	if status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", status)
	}
	if !strings.Contains(out["detail"].(string), "connection refused") {
		t.Errorf("detail = %v", out["detail"])
	}
}

func TestRouter_ActionsRegistered(t *testing.T) {
	r, _ := newTestRouter(t)
	want := []string{
		"add_transaction", "create_goal", "deposit_to_goal", "list_goals", "delete_goal",
		"list_transactions", "get_balance", "get_month_summary", "check_spending_alerts",
		"advise_expense", "suggest_saving_methods", "forecast_cashflow",
	}
	got := map[string]bool{}
	for _, a := range r.Actions() {
		got[a] = true
	}
	for _, a := range want {
		if !got[a] {
			t.Errorf("action %s not registered", a)
		}
	}
}
