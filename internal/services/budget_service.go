package services

import (
	"context"
	"log"
	"log/slog"
	"time"

	"modelmux/internal/database"
	"modelmux/internal/models"

	gocache "github.com/patrickmn/go-cache"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// BudgetService reads per-account budget configuration from the persistence
// collaborator, cached with a short TTL. Absence of configuration (or of the
// store itself) means no budget alerts for that account — not an error.
type BudgetService struct {
	mongo *database.MongoDB // may be nil
	cache *gocache.Cache
}

// NewBudgetService creates the budget config reader
func NewBudgetService(mongo *database.MongoDB) *BudgetService {
	return &BudgetService{
		mongo: mongo,
		cache: gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// GetBudget returns the budget configuration for an account, or nil when
// none is configured or the store is unavailable.
func (s *BudgetService) GetBudget(ctx context.Context, accountID string) *models.BudgetConfig {
	if accountID == "" {
		return nil
	}

	if cached, ok := s.cache.Get(accountID); ok {
		if budget, ok := cached.(*models.BudgetConfig); ok {
			return budget
		}
		// Cached absence marker
		return nil
	}

	budget := s.fetch(ctx, accountID)
	if budget == nil {
		// Cache the miss too, so an unconfigured account doesn't hit the
		// store on every recording.
		s.cache.Set(accountID, false, gocache.DefaultExpiration)
		return nil
	}

	s.cache.Set(accountID, budget, gocache.DefaultExpiration)
	return budget
}

// SetBudget writes an account's budget configuration and refreshes the cache
func (s *BudgetService) SetBudget(ctx context.Context, budget models.BudgetConfig) error {
	if s.mongo != nil {
		collection := s.mongo.Collection(database.CollectionAccountBudgets)
		_, err := collection.ReplaceOne(ctx,
			bson.M{"accountId": budget.AccountID},
			budget,
			options.Replace().SetUpsert(true))
		if err != nil {
			return err
		}
	}

	stored := budget
	s.cache.Set(budget.AccountID, &stored, gocache.DefaultExpiration)
	log.Printf("💰 [BUDGET] Set budget for account %s (daily: %.2f, monthly: %.2f)", budget.AccountID, budget.DailyBudget, budget.MonthlyBudget)
	return nil
}

// InvalidateCache drops an account's cached budget (call when config changes
// out of band)
func (s *BudgetService) InvalidateCache(accountID string) {
	s.cache.Delete(accountID)
}

func (s *BudgetService) fetch(ctx context.Context, accountID string) *models.BudgetConfig {
	if s.mongo == nil {
		return nil
	}

	var budget models.BudgetConfig
	err := s.mongo.Collection(database.CollectionAccountBudgets).
		FindOne(ctx, bson.M{"accountId": accountID}).
		Decode(&budget)
	if err != nil {
		if err != mongo.ErrNoDocuments {
			slog.Debug("budget lookup failed", "account_id", accountID, "error", err)
		}
		return nil
	}

	if budget.DailyBudget <= 0 && budget.MonthlyBudget <= 0 {
		return nil
	}
	return &budget
}
