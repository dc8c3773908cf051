// Package devseed populates a development database with the default store
// catalog and a set of preferences for the local dev user.
package devseed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/danavision/discovery-go/internal/data"
	"github.com/danavision/discovery-go/internal/domain/model"
	"github.com/danavision/discovery-go/internal/service"
)

// DevUserID is the owner seeded preferences belong to. It matches the
// fallback user id the header identity mode assigns unauthenticated dev
// requests, so a freshly seeded database lines up with local API calls.
const DevUserID = "dev-user"

// Services bundles the dependencies needed for development seeding.
type Services struct {
	DB        *sql.DB
	stores    *service.StoreService
	storeRepo *data.StoreRepo
}

// NewServices constructs all required services for seeding using the provided DB.
func NewServices(db *sql.DB) Services {
	storeRepo := data.NewStoreRepo(db)
	storeService := service.MustNewStoreService(service.StoreServiceOptions{
		Repo: storeRepo,
	})

	return Services{
		DB:        db,
		stores:    storeService,
		storeRepo: storeRepo,
	}
}

// Run executes the full development seeding workflow against the provided DB.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	failures := 0
	failures += seedDefaultStores(ctx, svcs.DB, logger)
	failures += seedDevPreferences(ctx, svcs, logger)
	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

// defaultStoreSeed describes one retailer in the shipped catalog.
type defaultStoreSeed struct {
	name        string
	domain      string
	urlTemplate string
	category    string
	priority    int
}

func defaultStoreSeeds() []defaultStoreSeed {
	return []defaultStoreSeed{
		{
			name:        "Amazon",
			domain:      "amazon.com",
			urlTemplate: "https://www.amazon.com/s?k={query}",
			category:    "general",
			priority:    10,
		},
		{
			name:        "Walmart",
			domain:      "walmart.com",
			urlTemplate: "https://www.walmart.com/search?q={query}",
			category:    "general",
			priority:    8,
		},
		{
			name:        "Best Buy",
			domain:      "bestbuy.com",
			urlTemplate: "https://www.bestbuy.com/site/searchpage.jsp?st={query}",
			category:    "electronics",
			priority:    6,
		},
		{
			name:        "Costco",
			domain:      "costco.com",
			urlTemplate: "https://www.costco.com/CatalogSearch?dept=All&keyword={query}",
			category:    "wholesale",
			priority:    5,
		},
		{
			name:        "eBay",
			domain:      "ebay.com",
			urlTemplate: "https://www.ebay.com/sch/i.html?_nkw={query}",
			category:    "marketplace",
			priority:    4,
		},
		{
			name:        "Home Depot",
			domain:      "homedepot.com",
			urlTemplate: "https://www.homedepot.com/s/{query}",
			category:    "home-improvement",
			priority:    3,
		},
	}
}

// upsertDefaultStoreSQL installs or refreshes one catalog store. No repo path
// sets is_default; this statement is the only writer of that flag, so the
// catalog stays the single source of default stores. A manually added store
// with the same domain is promoted rather than duplicated.
const upsertDefaultStoreSQL = `
	INSERT INTO stores (name, domain, url_template, category, default_priority, is_default, is_active)
	VALUES ($1, $2, $3, $4, $5, true, true)
	ON CONFLICT (domain) DO UPDATE SET
		name = EXCLUDED.name,
		url_template = EXCLUDED.url_template,
		category = EXCLUDED.category,
		default_priority = EXCLUDED.default_priority,
		is_default = true,
		is_active = true,
		updated_at = now()
`

func seedDefaultStores(ctx context.Context, db *sql.DB, logger *slog.Logger) int {
	failures := 0
	for _, seed := range defaultStoreSeeds() {
		_, err := db.ExecContext(ctx, upsertDefaultStoreSQL,
			seed.name,
			seed.domain,
			seed.urlTemplate,
			seed.category,
			seed.priority,
		)
		if err != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to seed default store", "domain", seed.domain, "error", err)
			}
			failures++
			continue
		}
		if logger != nil {
			logger.InfoContext(ctx, "seeded default store", "name", seed.name, "domain", seed.domain)
		}
	}
	return failures
}

// preferenceSeed describes one dev-user preference keyed by store domain.
type preferenceSeed struct {
	domain string
	req    model.UpdateStorePreferenceRequest
}

func devPreferenceSeeds() []preferenceSeed {
	favorite := true
	disabled := false
	override := 20
	return []preferenceSeed{
		{domain: "bestbuy.com", req: model.UpdateStorePreferenceRequest{Favorite: &favorite}},
		{domain: "walmart.com", req: model.UpdateStorePreferenceRequest{PriorityOverride: &override}},
		{domain: "ebay.com", req: model.UpdateStorePreferenceRequest{Enabled: &disabled}},
	}
}

func seedDevPreferences(ctx context.Context, svcs Services, logger *slog.Logger) int {
	failures := 0
	for _, seed := range devPreferenceSeeds() {
		if err := applyPreferenceSeed(ctx, svcs, seed); err != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to seed store preference",
					"user", DevUserID,
					"domain", seed.domain,
					"error", err,
				)
			}
			failures++
			continue
		}
		if logger != nil {
			logger.InfoContext(ctx, "seeded store preference", "user", DevUserID, "domain", seed.domain)
		}
	}
	return failures
}

func applyPreferenceSeed(ctx context.Context, svcs Services, seed preferenceSeed) error {
	store, err := svcs.storeRepo.GetByDomain(ctx, seed.domain)
	if err != nil {
		return fmt.Errorf("look up store %s: %w", seed.domain, err)
	}
	req := seed.req
	if _, err := svcs.stores.SetPreference(ctx, DevUserID, store.ID, &req); err != nil {
		return fmt.Errorf("set preference for %s: %w", seed.domain, err)
	}
	return nil
}
