package iap

import "fmt"

// Code is the uniform outcome reported to listeners, regardless of vendor.
type Code uint8

const (
	CodeUnknown Code = iota
	CodeUnavailable
	CodeCanceled
	CodeAlreadyOwned
	CodeNotOwned
	CodeFailure
)

func (c Code) String() string {
	switch c {
	case CodeUnavailable:
		return "unavailable"
	case CodeCanceled:
		return "canceled"
	case CodeAlreadyOwned:
		return "already owned"
	case CodeNotOwned:
		return "not owned"
	case CodeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Op names the operation that produced an Error.
type Op uint8

const (
	OpUnknown Op = iota
	OpPurchase
	OpConsume
	OpInventory
	OpProductDetails
)

func (o Op) String() string {
	switch o {
	case OpPurchase:
		return "purchase"
	case OpConsume:
		return "consume"
	case OpInventory:
		return "inventory"
	case OpProductDetails:
		return "product details"
	default:
		return "unknown"
	}
}

// NoVendorCode is used as Error.VendorCode when the failure did not originate
// from the vendor's backend.
const NoVendorCode = -1

// Error is the failure delivered to listeners. VendorCode keeps the raw vendor
// response for diagnostics only; callers branch on Code.
type Error struct {
	Op         Op
	Code       Code
	VendorCode int
}

func NewError(op Op, code Code, vendorCode int) *Error {
	return &Error{Op: op, Code: code, VendorCode: vendorCode}
}

func (e *Error) Error() string {
	if e.VendorCode == NoVendorCode {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s (vendor code %d)", e.Op, e.Code, e.VendorCode)
}

// Is reports whether target is an *Error with the same Code. A target with an
// unknown Op matches any Op, which lets the sentinels below be used with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.Op == OpUnknown || t.Op == e.Op
}

var (
	ErrUnavailable  = &Error{Code: CodeUnavailable, VendorCode: NoVendorCode}
	ErrCanceled     = &Error{Code: CodeCanceled, VendorCode: NoVendorCode}
	ErrAlreadyOwned = &Error{Code: CodeAlreadyOwned, VendorCode: NoVendorCode}
	ErrNotOwned     = &Error{Code: CodeNotOwned, VendorCode: NoVendorCode}
	ErrFailure      = &Error{Code: CodeFailure, VendorCode: NoVendorCode}
)
