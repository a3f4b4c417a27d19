package services

import (
	"context"
	"testing"

	"modelmux/internal/models"
)

func newTestCosts(t *testing.T, oncePerWindow bool, budget *models.BudgetConfig) *CostService {
	t.Helper()
	budgets := NewBudgetService(nil)
	if budget != nil {
		if err := budgets.SetBudget(context.Background(), *budget); err != nil {
			t.Fatalf("SetBudget failed: %v", err)
		}
	}
	return NewCostService(newTestRegistry(), budgets, nil, nil, nil, oncePerWindow)
}

func TestCalculateCostDeterministic(t *testing.T) {
	costs := newTestCosts(t, false, nil)

	first := costs.CalculateCost("gpt-4o", 123456, 7890)
	for i := 0; i < 100; i++ {
		if got := costs.CalculateCost("gpt-4o", 123456, 7890); got != first {
			t.Fatalf("iteration %d: calculation not deterministic: %+v vs %+v", i, got, first)
		}
	}

	if first.TotalCost != first.InputCost+first.OutputCost {
		t.Errorf("total must equal input + output: %+v", first)
	}
}

func TestCalculateCostKnownPricing(t *testing.T) {
	costs := newTestCosts(t, false, nil)

	// gpt-4o: $2.50 in / $10.00 out per million tokens
	got := costs.CalculateCost("gpt-4o", 1_000_000, 500_000)
	if got.InputCost != 2.50 {
		t.Errorf("expected input cost 2.50, got %v", got.InputCost)
	}
	if got.OutputCost != 5.00 {
		t.Errorf("expected output cost 5.00, got %v", got.OutputCost)
	}
	if got.TotalCost != 7.50 {
		t.Errorf("expected total 7.50, got %v", got.TotalCost)
	}
}

func TestCalculateCostUnknownModelConservativeDefaults(t *testing.T) {
	costs := newTestCosts(t, false, nil)

	got := costs.CalculateCost("mystery-model", 1_000_000, 1_000_000)
	if got.InputCost != defaultInputCostPerM {
		t.Errorf("expected conservative input pricing, got %v", got.InputCost)
	}
	if got.OutputCost != defaultOutputCostPerM {
		t.Errorf("expected conservative output pricing, got %v", got.OutputCost)
	}
}

func TestCalculateCostClampsNegativeTokens(t *testing.T) {
	costs := newTestCosts(t, false, nil)

	got := costs.CalculateCost("gpt-4o", -100, -200)
	if got.TotalCost != 0 {
		t.Errorf("negative token counts should cost nothing, got %v", got.TotalCost)
	}
}

func TestRecordCostAggregation(t *testing.T) {
	costs := newTestCosts(t, false, nil)
	ctx := context.Background()

	// gpt-4o at 100k input tokens costs exactly 0.25
	var expected float64
	for i := 0; i < 10; i++ {
		entry, _, err := costs.RecordCost(ctx, "gpt-4o", "acct-1", "user-1", 100_000, 0)
		if err != nil {
			t.Fatalf("RecordCost failed: %v", err)
		}
		expected += entry.TotalCost
	}

	totals := costs.GetTotals()
	if totals.Global != expected {
		t.Errorf("global total %v != sum of entries %v", totals.Global, expected)
	}
	if totals.Global != 2.50 {
		t.Errorf("expected exact total 2.50, got %v", totals.Global)
	}
	if totals.Entries != 10 {
		t.Errorf("expected 10 entries, got %d", totals.Entries)
	}
	if totals.PerAccount["acct-1"] != expected {
		t.Errorf("per-account total mismatch: %v", totals.PerAccount["acct-1"])
	}
	if totals.PerModel["gpt-4o"] != expected {
		t.Errorf("per-model total mismatch: %v", totals.PerModel["gpt-4o"])
	}
}

func TestRecordCostRequiresModel(t *testing.T) {
	costs := newTestCosts(t, false, nil)
	if _, _, err := costs.RecordCost(context.Background(), "", "acct-1", "u1", 100, 100); err == nil {
		t.Error("missing model id should be rejected")
	}
}

func TestBudgetAlertRaisedOnlyWhenExceeded(t *testing.T) {
	costs := newTestCosts(t, false, &models.BudgetConfig{
		AccountID:   "acct-1",
		DailyBudget: 5.00,
	})
	ctx := context.Background()

	// Unknown-model pricing: $5/M input. 998k input tokens = 4.99, under budget.
	_, alerts, err := costs.RecordCost(ctx, "mystery-model", "acct-1", "u1", 998_000, 0)
	if err != nil {
		t.Fatalf("RecordCost failed: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("4.99 of 5.00 must not alert, got %+v", alerts)
	}

	// Next entry pushes the day to 5.20: exactly one daily alert
	_, alerts, err = costs.RecordCost(ctx, "mystery-model", "acct-1", "u1", 42_000, 0)
	if err != nil {
		t.Fatalf("RecordCost failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(alerts))
	}
	alert := alerts[0]
	if alert.AlertType != models.AlertDailyLimit {
		t.Errorf("expected daily_limit alert, got %s", alert.AlertType)
	}
	if alert.Budget != 5.00 {
		t.Errorf("alert budget wrong: %v", alert.Budget)
	}
	if alert.Spent <= 5.00 {
		t.Errorf("alert spent should exceed the budget: %v", alert.Spent)
	}
	if alert.AccountID != "acct-1" {
		t.Errorf("alert account wrong: %s", alert.AccountID)
	}

	// Recording is never blocked by a breached budget
	totals := costs.GetTotals()
	if totals.Entries != 2 {
		t.Errorf("breached budget must not block recording: %d entries", totals.Entries)
	}
}

func TestBudgetAlertReRaisesByDefault(t *testing.T) {
	costs := newTestCosts(t, false, &models.BudgetConfig{
		AccountID:   "acct-1",
		DailyBudget: 0.01,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, alerts, err := costs.RecordCost(ctx, "mystery-model", "acct-1", "u1", 100_000, 0)
		if err != nil {
			t.Fatalf("RecordCost failed: %v", err)
		}
		if len(alerts) != 1 {
			t.Fatalf("iteration %d: expected re-raised alert, got %d", i, len(alerts))
		}
	}
}

func TestBudgetAlertOncePerWindow(t *testing.T) {
	costs := newTestCosts(t, true, &models.BudgetConfig{
		AccountID:   "acct-1",
		DailyBudget: 0.01,
	})
	ctx := context.Background()

	_, alerts, err := costs.RecordCost(ctx, "mystery-model", "acct-1", "u1", 100_000, 0)
	if err != nil {
		t.Fatalf("RecordCost failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("first breach should alert, got %d", len(alerts))
	}

	_, alerts, err = costs.RecordCost(ctx, "mystery-model", "acct-1", "u1", 100_000, 0)
	if err != nil {
		t.Fatalf("RecordCost failed: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("second breach in the same window should stay silent, got %+v", alerts)
	}
}

func TestMonthlyBudgetAlert(t *testing.T) {
	costs := newTestCosts(t, false, &models.BudgetConfig{
		AccountID:     "acct-1",
		MonthlyBudget: 0.10,
	})

	_, alerts, err := costs.RecordCost(context.Background(), "mystery-model", "acct-1", "u1", 100_000, 0)
	if err != nil {
		t.Fatalf("RecordCost failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].AlertType != models.AlertMonthlyLimit {
		t.Fatalf("expected monthly_limit alert, got %+v", alerts)
	}
}

func TestNoBudgetNoAlerts(t *testing.T) {
	costs := newTestCosts(t, false, nil)

	_, alerts, err := costs.RecordCost(context.Background(), "gpt-4o", "acct-without-budget", "u1", 10_000_000, 10_000_000)
	if err != nil {
		t.Fatalf("RecordCost failed: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("account without a budget must never alert, got %+v", alerts)
	}
}

func TestCostAlertListeners(t *testing.T) {
	costs := newTestCosts(t, false, &models.BudgetConfig{
		AccountID:   "acct-1",
		DailyBudget: 0.01,
	})

	var received []models.CostAlert
	id := costs.Subscribe(func(a models.CostAlert) {
		received = append(received, a)
	})

	if _, _, err := costs.RecordCost(context.Background(), "mystery-model", "acct-1", "u1", 100_000, 0); err != nil {
		t.Fatalf("RecordCost failed: %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("listener not invoked: %d", len(received))
	}

	costs.Unsubscribe(id)
	if _, _, err := costs.RecordCost(context.Background(), "mystery-model", "acct-1", "u1", 100_000, 0); err != nil {
		t.Fatalf("RecordCost failed: %v", err)
	}
	if len(received) != 1 {
		t.Error("unsubscribed listener still invoked")
	}
}

func TestRecordCostWithoutAccountSkipsBudgets(t *testing.T) {
	costs := newTestCosts(t, false, &models.BudgetConfig{AccountID: "acct-1", DailyBudget: 0.01})
	ctx := context.Background()

	// Anonymous recordings count toward the running totals but advance no
	// spending window and can never trip a budget.
	entry, alerts, err := costs.RecordCost(ctx, "gpt-4o", "", "user-1", 100_000, 0)
	if err != nil {
		t.Fatalf("RecordCost failed: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("expected no alerts without an account, got %d", len(alerts))
	}

	totals := costs.GetTotals()
	if totals.Global != entry.TotalCost {
		t.Errorf("anonymous entry missing from totals: %v vs %v", totals.Global, entry.TotalCost)
	}
}
