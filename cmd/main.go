package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/code-payments/cashier/cashier"
	"github.com/code-payments/cashier/config"
	"github.com/code-payments/cashier/iap"
	"github.com/code-payments/cashier/iap/billing"
	"github.com/code-payments/cashier/iap/billing/cache"
	"github.com/code-payments/cashier/iap/billing/memory"
	"github.com/code-payments/cashier/iap/billing/remote"
	"github.com/code-payments/cashier/iap/googleplay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	fx.New(
		fx.Supply(cfg),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Provide(
			newLogger,
			newCatalog,
			newBillingService,
		),
		fx.Invoke(
			startBillingServer,
			registerVendors,
			runDemo,
		),
	).Run()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level

	return zc.Build()
}

func newCatalog(cfg *config.Config) (*memory.Catalog, error) {
	catalog := memory.NewCatalog()
	catalog.PackageName = cfg.Billing.PackageName

	products := demoProducts()
	if cfg.Billing.CatalogFile != "" {
		var err error
		products, err = loadProducts(cfg.Billing.CatalogFile)
		if err != nil {
			return nil, err
		}
	}

	for _, p := range products {
		if err := catalog.AddProduct(p); err != nil {
			return nil, fmt.Errorf("invalid catalog product %s: %w", p.SKU, err)
		}
	}
	return catalog, nil
}

// loadProducts reads a JSON array of serialized products.
func loadProducts(path string) ([]*iap.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	products := make([]*iap.Product, 0, len(raw))
	for i, r := range raw {
		p, err := iap.ProductFromJSON(r)
		if err != nil {
			return nil, fmt.Errorf("invalid catalog entry %d: %w", i, err)
		}
		products = append(products, p)
	}
	return products, nil
}

func demoProducts() []*iap.Product {
	return []*iap.Product{
		{
			VendorID:    googleplay.VendorID,
			SKU:         "coffee",
			Price:       "$3.00",
			Currency:    "USD",
			Name:        "Coffee",
			Description: "A hot cup of coffee",
			MicrosPrice: 3_000_000,
		},
		{
			VendorID:       googleplay.VendorID,
			SKU:            "premium",
			Price:          "$4.99",
			Currency:       "USD",
			Name:           "Premium",
			Description:    "Monthly premium",
			IsSubscription: true,
			MicrosPrice:    4_990_000,
		},
	}
}

func newBillingService(cfg *config.Config, catalog *memory.Catalog) billing.Service {
	return cache.NewInCache(memory.NewService(catalog), cfg.Billing.DetailsCacheTTL)
}

func startBillingServer(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, svc billing.Service) {
	log = log.Named("billing")
	serv := grpc.NewServer(remote.ServerOptions(log)...)
	remote.NewServer(log, svc).Register(serv)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			lis, err := net.Listen("tcp", cfg.Billing.ListenAddress)
			if err != nil {
				return fmt.Errorf("failed to listen: %w", err)
			}

			log.Info("Serving fake billing service", zap.String("address", lis.Addr().String()))
			go func() {
				if err := serv.Serve(lis); err != nil {
					log.Warn("Billing server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			serv.GracefulStop()
			return nil
		},
	})
}

func registerVendors(log *zap.Logger, cfg *config.Config) error {
	packageName := cfg.Billing.PackageName
	target := cfg.BillingTarget()

	return cashier.RegisterVendorFactory(googleplay.VendorID, func() iap.Vendor {
		binder := remote.NewBinder(
			log.Named("binder"),
			target,
			packageName,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		return googleplay.NewVendor(
			packageName,
			binder,
			log,
			googleplay.WithDeveloperPayload(cfg.Demo.DeveloperPayload),
		)
	})
}
