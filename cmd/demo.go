package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/code-payments/cashier/cashier"
	"github.com/code-payments/cashier/config"
	"github.com/code-payments/cashier/iap"
	"github.com/code-payments/cashier/iap/billing"
	"github.com/code-payments/cashier/iap/billing/memory"
	"github.com/code-payments/cashier/iap/googleplay"
)

const demoTimeout = 10 * time.Second

// launcher is a host that plays the store's purchase screen by checking out
// against the local catalog.
type launcher struct {
	*memory.Host
	launched chan memory.Launch
}

func (l *launcher) StartIntentForResult(intent iap.Intent, requestCode int) error {
	if err := l.Host.StartIntentForResult(intent, requestCode); err != nil {
		return err
	}
	l.launched <- memory.Launch{Intent: intent, RequestCode: requestCode}
	return nil
}

// runDemo walks one purchase through the vendor adapter once the billing
// server is up.
func runDemo(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, catalog *memory.Catalog) {
	log = log.Named("demo")
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := demo(ctx, log, cfg, catalog); err != nil {
					log.Warn("Demo failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func demo(ctx context.Context, log *zap.Logger, cfg *config.Config, catalog *memory.Catalog) error {
	host := &launcher{
		Host:     memory.NewHost(catalog, googleplay.VendorID),
		launched: make(chan memory.Launch, 1),
	}

	c, err := cashier.ForInstaller(host, cashier.WithLogger(log))
	if err != nil {
		return err
	}
	defer c.Dispose()

	log = log.With(zap.String("sku", cfg.Demo.SKU))

	details := make(chan error, 1)
	var product *iap.Product
	c.GetProductDetails(ctx, cfg.Demo.SKU, false, iap.ProductDetailsCallbacks{
		OnSuccess: func(p *iap.Product) {
			product = p
			details <- nil
		},
		OnFailure: func(err *iap.Error) { details <- err },
	})
	if err := wait(ctx, details); err != nil {
		return fmt.Errorf("failed to get product details: %w", err)
	}
	log.Info("Found product", zap.Stringer("product", product), zap.String("price", product.PriceDecimal().String()))

	if cfg.Billing.Target != "" {
		// The remote catalog is out of reach, so nothing can be checked out.
		return nil
	}

	purchased := make(chan error, 1)
	var purchase *iap.Purchase
	c.Purchase(ctx, product, cfg.Demo.DeveloperPayload, iap.PurchaseCallbacks{
		OnSuccess: func(p *iap.Purchase) {
			purchase = p
			purchased <- nil
		},
		OnFailure: func(_ *iap.Product, err *iap.Error) { purchased <- err },
	})

	select {
	case launch := <-host.launched:
		intent, ok := launch.Intent.(*billing.PendingIntent)
		if !ok {
			return errors.New("launched intent is not a billing intent")
		}
		data, err := catalog.Checkout(intent)
		if err != nil {
			return err
		}
		c.OnActivityResult(launch.RequestCode, iap.ResultOK, data)
	case err := <-purchased:
		return fmt.Errorf("purchase failed: %w", err)
	case <-time.After(demoTimeout):
		return errors.New("timed out waiting for the purchase flow")
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := wait(ctx, purchased); err != nil {
		return fmt.Errorf("purchase failed: %w", err)
	}
	log.Info("Purchased", zap.String("order_id", purchase.OrderID), zap.String("token", purchase.Token))

	if !cfg.Demo.Consume || !purchase.CanConsume() {
		return nil
	}

	consumed := make(chan error, 1)
	c.Consume(ctx, purchase, iap.ConsumeCallbacks{
		OnSuccess: func(*iap.Purchase) { consumed <- nil },
		OnFailure: func(_ *iap.Purchase, err *iap.Error) { consumed <- err },
	})
	if err := wait(ctx, consumed); err != nil {
		return fmt.Errorf("consume failed: %w", err)
	}
	log.Info("Consumed purchase")
	return nil
}

// wait blocks until a listener reports.
func wait(ctx context.Context, ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-time.After(demoTimeout):
		return errors.New("timed out waiting for the vendor")
	case <-ctx.Done():
		return ctx.Err()
	}
}
