// Package main provides a CLI tool for seeding the database with initial data.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/core/security"
	"retailstock/internal/core/types"
	"retailstock/internal/domain"
	"retailstock/internal/domain/auth"
	"retailstock/internal/domain/catalogs/account"
	"retailstock/internal/domain/catalogs/branch"
	"retailstock/internal/domain/catalogs/product"
	"retailstock/internal/domain/ledger"
	"retailstock/internal/infrastructure/config"
	"retailstock/internal/infrastructure/storage/postgres"
	"retailstock/internal/infrastructure/storage/postgres/auth_repo"
	"retailstock/internal/infrastructure/storage/postgres/catalog_repo"
	"retailstock/internal/infrastructure/storage/postgres/register_repo"
	"retailstock/pkg/logger"
)

const demoAccountName = "Demo Shop"

type seeder struct {
	log      *logger.Logger
	users    *auth_repo.UserRepo
	auth     *auth.Service
	accounts *account.Service
	branches *branch.Service
	products *product.Service
	ledger   *ledger.Engine
}

func main() {
	configPath := flag.String("config", "", "path to a config file")
	demo := flag.Bool("demo", os.Getenv("SEED_DEMO_DATA") == "true", "also create a demo account with stock")
	flag.Parse()

	_ = godotenv.Load()

	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}

	ctx := logger.WithLogger(context.Background(), log)

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.Database.DSN))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("connected to database")

	txm := postgres.NewTxManager(pool)
	branchRepo := catalog_repo.NewBranchRepo(txm)
	productRepo := catalog_repo.NewProductRepo(txm)
	accountRepo := catalog_repo.NewAccountRepo(txm)
	userRepo := auth_repo.NewUserRepo(txm)
	logRepo, err := postgres.NewMovementLogRepo(txm)
	if err != nil {
		log.Fatalw("failed to create movement log repository", "error", err)
	}

	authService := auth.NewService(userRepo, branchRepo, txm, auth.NewJWTService(auth.DefaultJWTConfig(cfg.Auth.JWTSecret)), auth.DefaultServiceConfig())
	s := &seeder{
		log:      log,
		users:    userRepo,
		auth:     authService,
		accounts: account.NewService(accountRepo, txm),
		branches: branch.NewService(branchRepo, txm, accountRepo, authService),
		products: product.NewService(productRepo, txm, branchRepo),
		ledger: ledger.NewEngine(txm,
			register_repo.NewStockRepo(txm),
			register_repo.NewMovementRepo(txm),
			logRepo,
			catalog_repo.CatalogLookup{ProductRepo: productRepo, Branches: branchRepo},
		),
	}

	admin, err := s.ensureUser(ctx, auth.CreateUserRequest{
		Email:     getEnv("ADMIN_EMAIL", "admin@retailstock.local"),
		Password:  getEnv("ADMIN_PASSWORD", "Admin123!"),
		FirstName: "System",
		LastName:  "Admin",
		Role:      security.RoleAdmin,
	})
	if err != nil {
		log.Fatalw("failed to seed admin user", "error", err)
	}

	if *demo {
		if err := s.seedDemoData(ctx, admin); err != nil {
			log.Fatalw("failed to seed demo data", "error", err)
		}
	}

	log.Info("seeding completed successfully")
}

// ensureUser creates req unless its email is taken and returns the user.
func (s *seeder) ensureUser(ctx context.Context, req auth.CreateUserRequest) (*auth.User, error) {
	u, err := s.auth.CreateUser(ctx, req)
	if apperror.IsDuplicate(err) {
		existing, getErr := s.users.GetByEmail(ctx, req.Email)
		if getErr != nil {
			return nil, fmt.Errorf("load existing user %s: %w", req.Email, getErr)
		}
		s.log.Infow("user already exists", "email", existing.Email, "user_id", existing.ID)
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create user %s: %w", req.Email, err)
	}
	s.log.Infow("user created", "email", u.Email, "role", u.Role, "user_id", u.ID)
	return u, nil
}

func (s *seeder) seedDemoData(ctx context.Context, admin *auth.User) error {
	s.log.Info("seeding demo data...")

	existing, err := s.accounts.List(ctx, domain.ListFilter{Search: demoAccountName, Limit: 1})
	if err != nil {
		return fmt.Errorf("look up demo account: %w", err)
	}
	if existing.TotalCount > 0 {
		s.log.Infow("demo account already exists, skipping", "account_id", existing.Items[0].ID)
		return nil
	}

	// 1. Account and branches
	acc := account.NewAccount(demoAccountName)
	if err := s.accounts.Create(ctx, acc); err != nil {
		return fmt.Errorf("create account: %w", err)
	}

	branchNames := []string{"Remera", "Kacyiru"}
	branchIDs := make(map[string]id.ID, len(branchNames))
	for _, name := range branchNames {
		b := branch.NewBranch(acc.ID, name)
		if err := s.branches.Create(ctx, b); err != nil {
			return fmt.Errorf("create branch %s: %w", name, err)
		}
		branchIDs[name] = b.ID
	}

	// 2. Users
	if _, err := s.ensureUser(ctx, auth.CreateUserRequest{
		Email: "manager@retailstock.local", Password: "Manager123!",
		FirstName: "Demo", LastName: "Manager",
		Role: security.RoleManager, AccountID: &acc.ID,
	}); err != nil {
		return err
	}
	remera := branchIDs["Remera"]
	if _, err := s.ensureUser(ctx, auth.CreateUserRequest{
		Email: "staff@retailstock.local", Password: "Staff123!",
		FirstName: "Demo", LastName: "Cashier",
		Role: security.RoleStaff, AccountID: &acc.ID, BranchID: &remera,
	}); err != nil {
		return err
	}

	// 3. Products with opening stock
	type productSeed struct {
		branch   string
		name     string
		category string
		cost     string
		price    string
		opening  int64
	}
	seeds := []productSeed{
		{"Remera", "Sugar 1kg", "Groceries", "1200.00", "1500.00", 100},
		{"Remera", "Rice 5kg", "Groceries", "6500.00", "7800.00", 40},
		{"Remera", "Cooking Oil 1L", "Groceries", "2800.00", "3300.00", 60},
		{"Kacyiru", "Soap Bar", "Household", "400.00", "600.00", 200},
		{"Kacyiru", "Milk 500ml", "Dairy", "450.00", "600.00", 0},
	}

	actor := entity.Actor{ID: admin.ID.String(), Name: admin.FullName()}
	for _, ps := range seeds {
		branchID := branchIDs[ps.branch]
		p := product.NewProduct(acc.ID, branchID, ps.name, ps.category, types.MustMoney(ps.cost), types.MustMoney(ps.price))
		if err := s.products.Create(ctx, p); err != nil {
			return fmt.Errorf("create product %s: %w", ps.name, err)
		}
		if ps.opening == 0 {
			continue
		}
		_, err := s.ledger.CreateMovement(ctx, ledger.CreateRequest{MovementFields: ledger.MovementFields{
			ProductID: p.ID,
			BranchID:  branchID,
			Type:      entity.MovementIn,
			Quantity:  ps.opening,
			Notes:     "opening stock",
		}}, actor)
		if err != nil {
			return fmt.Errorf("record opening stock for %s: %w", ps.name, err)
		}
	}

	s.log.Infow("demo data seeded",
		"account_id", acc.ID,
		"branches", len(branchNames),
		"products", len(seeds),
	)
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
