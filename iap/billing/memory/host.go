package memory

import (
	"errors"
	"sync"

	"github.com/code-payments/cashier/iap"
	"github.com/code-payments/cashier/iap/billing"
)

var ErrNoLaunch = errors.New("no external flow was launched")

// Launch is an external flow started through Host.
type Launch struct {
	Intent      iap.Intent
	RequestCode int
}

// Host is an iap.Host that records launched flows and lets tests finish them.
type Host struct {
	// Installer is returned by InstallerPackageName.
	Installer string

	// LaunchErr, if set, is returned by StartIntentForResult.
	LaunchErr error

	catalog *Catalog

	mu       sync.Mutex
	launches []Launch
}

func NewHost(catalog *Catalog, installer string) *Host {
	return &Host{
		Installer: installer,
		catalog:   catalog,
	}
}

func (h *Host) StartIntentForResult(intent iap.Intent, requestCode int) error {
	if h.LaunchErr != nil {
		return h.LaunchErr
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.launches = append(h.launches, Launch{Intent: intent, RequestCode: requestCode})
	return nil
}

func (h *Host) InstallerPackageName() string {
	return h.Installer
}

func (h *Host) Launches() []Launch {
	h.mu.Lock()
	defer h.mu.Unlock()

	launches := make([]Launch, len(h.launches))
	copy(launches, h.launches)
	return launches
}

func (h *Host) LastLaunch() (Launch, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.launches) == 0 {
		return Launch{}, false
	}
	return h.launches[len(h.launches)-1], true
}

// Complete checks out the most recently launched flow against the catalog and
// forwards the result to v. It returns what v.OnActivityResult returned.
func (h *Host) Complete(v iap.Vendor) (bool, error) {
	launch, ok := h.LastLaunch()
	if !ok {
		return false, ErrNoLaunch
	}
	intent, ok := launch.Intent.(*billing.PendingIntent)
	if !ok {
		return false, errors.New("launched intent is not a billing intent")
	}

	data, err := h.catalog.Checkout(intent)
	if err != nil {
		return false, err
	}
	return v.OnActivityResult(launch.RequestCode, iap.ResultOK, data), nil
}

// Cancel reports the most recently launched flow as canceled by the user.
func (h *Host) Cancel(v iap.Vendor) (bool, error) {
	launch, ok := h.LastLaunch()
	if !ok {
		return false, ErrNoLaunch
	}
	data := iap.Bundle{billing.KeyResponseCode: billing.ResponseUserCanceled}
	return v.OnActivityResult(launch.RequestCode, iap.ResultCanceled, data), nil
}

// Deliver forwards an arbitrary result to v, bypassing the catalog.
func (h *Host) Deliver(v iap.Vendor, requestCode int, resultCode iap.ResultCode, data iap.Bundle) bool {
	return v.OnActivityResult(requestCode, resultCode, data)
}
