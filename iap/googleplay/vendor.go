package googleplay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/code-payments/cashier/iap"
	"github.com/code-payments/cashier/iap/billing"
)

// VendorID identifies products and purchases that belong to Google Play.
const VendorID = "com.android.vending"

const logName = "InAppBillingV3"

type pendingPurchase struct {
	product     *iap.Product
	listener    iap.PurchaseListener
	requestCode int
}

// Vendor is the iap.Vendor for the in-app billing v3 service.
//
// A Vendor serves one checkout flow at a time. It is safe to receive service
// notices and activity results from other goroutines, but only one purchase
// may be pending: starting another overwrites the first.
type Vendor struct {
	packageName      string
	developerPayload string
	binder           billing.Binder
	conn             *connection

	mu               sync.Mutex
	log              *zap.Logger
	state            State
	service          billing.Service
	probeCtx         context.Context
	initListener     iap.InitializationListener
	canPurchaseItems bool
	canSubscribe     bool
	initialized      bool
	available        bool
	bound            bool
	pending          *pendingPurchase

	// connSeq advances on every disconnect, so a probe that outlives its
	// connection is dropped.
	connSeq uint64
}

type Option func(*Vendor)

// WithDeveloperPayload sets the payload sent with purchases that don't carry
// their own.
func WithDeveloperPayload(payload string) Option {
	return func(v *Vendor) {
		v.developerPayload = payload
	}
}

func NewVendor(packageName string, binder billing.Binder, log *zap.Logger, opts ...Option) *Vendor {
	if packageName == "" {
		panic("googleplay: empty package name")
	}
	if binder == nil {
		panic("googleplay: nil binder")
	}
	if log == nil {
		log = zap.NewNop()
	}

	v := &Vendor{
		packageName: packageName,
		binder:      binder,
		log:         log.Named(logName),
		state:       StateUninitialized,
	}
	v.conn = &connection{v: v}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Vendor) ID() string {
	return VendorID
}

func (v *Vendor) SetLogger(log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.log = log.Named(logName)
}

// State returns the current connection state.
func (v *Vendor) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.state
}

func (v *Vendor) Initialize(ctx context.Context, _ iap.Host, listener iap.InitializationListener) {
	if listener == nil {
		panic("googleplay: nil initialization listener")
	}

	v.mu.Lock()
	if v.initialized {
		v.mu.Unlock()
		listener.Initialized()
		return
	}
	log := v.log
	v.mu.Unlock()

	log.Debug("Initializing in-app billing v3")

	if !v.binder.Resolve(ctx) {
		v.logAndDisable("No service to receive the bind request")
		listener.Unavailable()
		return
	}

	v.mu.Lock()
	v.initialized = true
	v.available = true
	v.initListener = listener
	v.probeCtx = context.WithoutCancel(ctx)
	v.bound = true
	v.transition(StateConnecting)
	v.mu.Unlock()

	// The connection notice may arrive before Bind returns.
	if err := v.binder.Bind(ctx, v.conn); err != nil {
		v.mu.Lock()
		v.initialized = false
		v.bound = false
		v.initListener = nil
		v.mu.Unlock()

		if errors.Is(err, billing.ErrPermissionDenied) {
			v.logAndDisable("App does not have the billing permission")
		} else {
			v.logAndDisable(fmt.Sprintf("Failed to bind to billing service: %v", err))
		}
		listener.Unavailable()
	}
}

func (v *Vendor) Dispose(_ iap.Host) {
	v.mu.Lock()
	if !v.bound {
		v.mu.Unlock()
		return
	}
	v.bound = false
	v.service = nil
	v.transition(StateDisposed)
	log := v.log
	v.mu.Unlock()

	v.binder.Unbind(v.conn)
	log.Debug("Disposed billing service connection")
}

func (v *Vendor) Available() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.initialized && v.available && v.canPurchaseAnything()
}

func (v *Vendor) CanPurchase(product *iap.Product) bool {
	if product == nil {
		panic("googleplay: nil product")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.canPurchaseAnything() {
		return false
	}
	if product.IsSubscription && !v.canSubscribe {
		return false
	}
	if !product.IsSubscription && !v.canPurchaseItems {
		return false
	}
	return true
}

func (v *Vendor) Purchase(ctx context.Context, host iap.Host, product *iap.Product, developerPayload string, listener iap.PurchaseListener) {
	if host == nil || listener == nil {
		panic("googleplay: nil host or purchase listener")
	}
	if !v.CanPurchase(product) {
		panic(fmt.Sprintf("googleplay: cannot purchase %s", product))
	}

	svc, log, ok := v.boundService("purchase")
	log = log.With(zap.String("sku", product.SKU))
	if !ok {
		log.Warn("Not connected to billing service")
		listener.Failure(product, iap.NewError(iap.OpPurchase, iap.CodeUnavailable, iap.NoVendorCode))
		return
	}

	if developerPayload == "" {
		developerPayload = v.developerPayload
	}

	log.Debug("Constructing buy intent")
	b, err := svc.RequestPurchaseIntent(ctx, product.SKU, billing.ItemTypeOf(product), developerPayload)
	if err != nil {
		log.Warn("Failed to request buy intent", zap.Error(err))
		listener.Failure(product, billing.NewError(iap.OpPurchase, billing.ResponseError))
		return
	}

	code := v.responseCode(log, b)
	if code != billing.ResponseOK {
		log.Debug("Couldn't purchase product", zap.Stringer("code", code))
		listener.Failure(product, billing.NewError(iap.OpPurchase, code))
		return
	}

	intent := billing.PendingIntentOf(b)
	if intent == nil {
		log.Warn("Received no pending intent")
		listener.Failure(product, billing.NewError(iap.OpPurchase, code))
		return
	}

	requestCode := nextRequestCode()

	v.mu.Lock()
	if v.pending != nil {
		log.Warn("Overwriting pending purchase", zap.String("pending_sku", v.pending.product.SKU))
	}
	v.pending = &pendingPurchase{
		product:     product.Clone(),
		listener:    listener,
		requestCode: requestCode,
	}
	v.mu.Unlock()

	log.Debug("Launching buy intent", zap.Int("request_code", requestCode))
	if err := host.StartIntentForResult(intent, requestCode); err != nil {
		v.mu.Lock()
		if v.pending != nil && v.pending.requestCode == requestCode {
			v.pending = nil
		}
		v.mu.Unlock()

		log.Warn("Failed to launch purchase", zap.Error(err))
		listener.Failure(product, billing.NewError(iap.OpPurchase, billing.ResponseError))
	}
}

func (v *Vendor) Consume(ctx context.Context, _ iap.Host, purchase *iap.Purchase, listener iap.ConsumeListener) {
	if purchase == nil || purchase.Product == nil || listener == nil {
		panic("googleplay: nil purchase or consume listener")
	}
	if purchase.Product.IsSubscription {
		panic("googleplay: cannot consume a subscription")
	}

	svc, log, ok := v.boundService("consume")
	log = log.With(zap.String("sku", purchase.Product.SKU))
	if !ok {
		log.Warn("Not connected to billing service")
		listener.Failure(purchase, iap.NewError(iap.OpConsume, iap.CodeUnavailable, iap.NoVendorCode))
		return
	}

	log.Debug("Consuming purchase")
	code, err := svc.Consume(ctx, purchase.Token)
	if err != nil {
		log.Warn("Failed to consume purchase", zap.Error(err))
		listener.Failure(purchase, billing.NewError(iap.OpConsume, billing.ResponseError))
		return
	}
	if code != billing.ResponseOK {
		log.Debug("Couldn't consume purchase", zap.Stringer("code", code))
		listener.Failure(purchase, billing.NewError(iap.OpConsume, code))
		return
	}

	log.Debug("Consumed purchase")
	listener.Success(purchase)
}

func (v *Vendor) OnActivityResult(requestCode int, resultCode iap.ResultCode, data iap.Bundle) bool {
	v.mu.Lock()
	pending := v.pending
	if pending == nil || pending.requestCode != requestCode {
		v.mu.Unlock()
		return false
	}
	v.pending = nil
	log := v.log.With(zap.String("sku", pending.product.SKU), zap.Int("request_code", requestCode))
	v.mu.Unlock()

	product, listener := pending.product, pending.listener

	if data == nil {
		log.Warn("Purchase result has no data")
		listener.Failure(product, billing.NewError(iap.OpPurchase, billing.ResponseError))
		return true
	}

	code := v.responseCode(log, data)
	switch {
	case resultCode == iap.ResultOK && code == billing.ResponseOK:
		purchaseData := billing.String(data, billing.KeyPurchaseData)
		signature := billing.String(data, billing.KeyDataSignature)
		purchase, err := PurchaseFromPurchaseData(product, purchaseData, signature)
		if err != nil {
			// Host and store both report OK, so succeed with whatever was sent.
			log.Warn("Failed to parse purchase data", zap.Error(err))
			purchase = partialPurchase(product, purchaseData, signature)
		}

		log.Debug("Purchase succeeded", zap.String("order_id", purchase.OrderID))
		listener.Success(purchase)
	case resultCode == iap.ResultOK:
		log.Debug("Purchase failed", zap.Stringer("code", code))
		listener.Failure(product, billing.NewError(iap.OpPurchase, code))
	default:
		log.Debug("Purchase canceled", zap.Stringer("code", code))
		listener.Failure(product, billing.NewError(iap.OpPurchase, code))
	}

	return true
}

func (v *Vendor) ProductFromJSON(data []byte) (*iap.Product, error) {
	product, err := iap.ProductFromJSON(data)
	if err != nil {
		return nil, err
	}
	if product.VendorID != VendorID {
		return nil, fmt.Errorf("product belongs to vendor %q", product.VendorID)
	}
	return product, nil
}

func (v *Vendor) PurchaseFromJSON(data []byte) (*iap.Purchase, error) {
	purchase, err := iap.PurchaseFromJSON(data)
	if err != nil {
		return nil, err
	}
	if purchase.Product.VendorID != VendorID {
		return nil, fmt.Errorf("purchase belongs to vendor %q", purchase.Product.VendorID)
	}
	return purchase, nil
}

// boundService returns the connected service, panicking if the vendor was not
// initialized first. ok is false while the service is disconnected.
func (v *Vendor) boundService(op string) (svc billing.Service, log *zap.Logger, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.initialized {
		panic(fmt.Sprintf("googleplay: %s without initializing first", op))
	}
	return v.service, v.log, v.service != nil
}

// connected returns the connected service, if any, without panicking.
func (v *Vendor) connected() (billing.Service, *zap.Logger, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.service, v.log, v.service != nil && v.initialized
}

func (v *Vendor) responseCode(log *zap.Logger, b iap.Bundle) billing.ResponseCode {
	code, found, err := billing.ResponseCodeOf(b)
	if err != nil {
		log.Warn("Unexpected response code", zap.Error(err))
		return billing.ResponseError
	}
	if !found {
		log.Debug("Null response code from bundle, assuming OK (known issue)")
	}
	return code
}

func (v *Vendor) canPurchaseAnything() bool {
	return v.canPurchaseItems || v.canSubscribe
}

// transition must be called with mu held.
func (v *Vendor) transition(to State) bool {
	if !stateTransitions.Allowed(v.state, to) {
		v.log.Debug("Ignoring state transition", zap.Stringer("from", v.state), zap.Stringer("to", to))
		return false
	}
	v.state = to
	return true
}

func (v *Vendor) logAndDisable(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.log.Warn(msg)
	v.available = false
	v.transition(StateIncapable)
}

func (v *Vendor) onServiceConnected(svc billing.Service) {
	v.mu.Lock()
	if v.state == StateDisposed {
		v.mu.Unlock()
		return
	}
	ctx := v.probeCtx
	seq := v.connSeq
	v.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	if svc == nil {
		v.probeFailed(seq, "Couldn't create billing service instance")
		return
	}

	itemsCode, err := svc.CheckSupport(ctx, billing.ItemTypeInApp)
	if err != nil {
		v.probeFailed(seq, fmt.Sprintf("Failed to probe in-app support: %v", err))
		return
	}
	subsCode, err := svc.CheckSupport(ctx, billing.ItemTypeSubscription)
	if err != nil {
		v.probeFailed(seq, fmt.Sprintf("Failed to probe subscription support: %v", err))
		return
	}

	v.mu.Lock()
	log := v.log
	if v.connSeq != seq || v.state == StateDisposed {
		v.mu.Unlock()
		log.Debug("Dropping capabilities of a lost connection")
		return
	}
	v.service = svc
	v.canPurchaseItems = itemsCode == billing.ResponseOK
	v.canSubscribe = subsCode == billing.ResponseOK
	v.available = v.canPurchaseAnything()
	if v.available {
		v.transition(StateCapable)
	} else {
		v.transition(StateIncapable)
	}
	listener := v.initListener
	v.initListener = nil
	available := v.available
	v.mu.Unlock()

	log.Debug("Connected to billing service",
		zap.Bool("available", available),
		zap.Bool("can_purchase_items", itemsCode == billing.ResponseOK),
		zap.Bool("can_subscribe", subsCode == billing.ResponseOK),
	)
	if listener != nil {
		listener.Initialized()
	}
}

// probeFailed disables the vendor after a failed capability probe and
// reports it to a waiting initializer.
func (v *Vendor) probeFailed(seq uint64, msg string) {
	v.mu.Lock()
	if v.connSeq != seq {
		v.mu.Unlock()
		return
	}
	v.log.Warn(msg)
	v.available = false
	v.transition(StateIncapable)
	listener := v.initListener
	v.initListener = nil
	v.mu.Unlock()

	if listener != nil {
		listener.Unavailable()
	}
}

func (v *Vendor) onServiceDisconnected() {
	v.mu.Lock()
	v.connSeq++
	v.service = nil
	v.available = false
	v.log.Warn("Disconnected from billing service")
	v.transition(StateIncapable)
	listener := v.initListener
	v.initListener = nil
	v.mu.Unlock()

	if listener != nil {
		listener.Unavailable()
	}
}

// connection receives service notices on the vendor's behalf, keeping them off
// the Vendor's exported API.
type connection struct {
	v *Vendor
}

func (c *connection) OnServiceConnected(svc billing.Service) {
	c.v.onServiceConnected(svc)
}

func (c *connection) OnServiceDisconnected() {
	c.v.onServiceDisconnected()
}
