package billing

import "github.com/code-payments/cashier/iap"

// ResponseCode is a raw billing service response code.
type ResponseCode int

const (
	ResponseOK                 ResponseCode = 0
	ResponseUserCanceled       ResponseCode = 1
	ResponseBillingUnavailable ResponseCode = 3
	ResponseItemUnavailable    ResponseCode = 4
	ResponseDeveloperError     ResponseCode = 5
	ResponseError              ResponseCode = 6
	ResponseItemAlreadyOwned   ResponseCode = 7
	ResponseItemNotOwned       ResponseCode = 8
)

func (c ResponseCode) String() string {
	switch c {
	case ResponseOK:
		return "OK"
	case ResponseUserCanceled:
		return "USER_CANCELED"
	case ResponseBillingUnavailable:
		return "BILLING_UNAVAILABLE"
	case ResponseItemUnavailable:
		return "ITEM_UNAVAILABLE"
	case ResponseDeveloperError:
		return "DEVELOPER_ERROR"
	case ResponseError:
		return "ERROR"
	case ResponseItemAlreadyOwned:
		return "ITEM_ALREADY_OWNED"
	case ResponseItemNotOwned:
		return "ITEM_NOT_OWNED"
	default:
		return "UNKNOWN"
	}
}

// Translate maps a raw response code onto the uniform outcome. Listeners never
// see raw codes except as Error.VendorCode.
func Translate(code ResponseCode) iap.Code {
	switch code {
	case ResponseBillingUnavailable, ResponseItemUnavailable:
		return iap.CodeUnavailable
	case ResponseUserCanceled:
		return iap.CodeCanceled
	case ResponseItemAlreadyOwned:
		return iap.CodeAlreadyOwned
	case ResponseItemNotOwned:
		return iap.CodeNotOwned
	default:
		return iap.CodeFailure
	}
}

// NewError builds the listener facing error for a raw response code.
func NewError(op iap.Op, code ResponseCode) *iap.Error {
	return iap.NewError(op, Translate(code), int(code))
}
