package remote

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/code-payments/cashier/iap"
	"github.com/code-payments/cashier/iap/billing"
)

// Request fields.
const (
	fieldItemType          = "item_type"
	fieldSKUs              = billing.KeyItemIDList
	fieldSKU               = "sku"
	fieldDeveloperPayload  = "developer_payload"
	fieldContinuationToken = "continuation_token"
	fieldToken             = "token"
)

// Fields of an encoded billing.PendingIntent.
const (
	intentID               = "id"
	intentSKU              = "sku"
	intentItemType         = "item_type"
	intentDeveloperPayload = "developer_payload"
)

var stringListKeys = []string{
	billing.KeyDetailsList,
	billing.KeyPurchaseItemList,
	billing.KeyPurchaseDataList,
	billing.KeyDataSignatureList,
	billing.KeyItemIDList,
}

// encodeBundle converts b into its wire form. Only the value types a billing
// service produces are supported.
func encodeBundle(b iap.Bundle) (*structpb.Struct, error) {
	fields := make(map[string]*structpb.Value, len(b))
	for k, v := range b {
		encoded, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", k, err)
		}
		fields[k] = encoded
	}
	return &structpb.Struct{Fields: fields}, nil
}

func encodeValue(v any) (*structpb.Value, error) {
	switch t := v.(type) {
	case billing.ResponseCode:
		return structpb.NewNumberValue(float64(t)), nil
	case billing.ItemType:
		return structpb.NewStringValue(string(t)), nil
	case []string:
		values := make([]*structpb.Value, 0, len(t))
		for _, s := range t {
			values = append(values, structpb.NewStringValue(s))
		}
		return structpb.NewListValue(&structpb.ListValue{Values: values}), nil
	case *billing.PendingIntent:
		if t == nil {
			return structpb.NewNullValue(), nil
		}
		return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			intentID:               structpb.NewStringValue(t.ID),
			intentSKU:              structpb.NewStringValue(t.SKU),
			intentItemType:         structpb.NewStringValue(string(t.ItemType)),
			intentDeveloperPayload: structpb.NewStringValue(t.DeveloperPayload),
		}}), nil
	default:
		return structpb.NewValue(v)
	}
}

// decodeBundle is the inverse of encodeBundle. Response codes come back as
// billing.ResponseCode, string lists as []string and the buy intent as a
// *billing.PendingIntent.
func decodeBundle(s *structpb.Struct) (iap.Bundle, error) {
	b := iap.Bundle(s.AsMap())

	if v, ok := b[billing.KeyResponseCode]; ok {
		n, ok := v.(float64)
		if !ok || n != math.Trunc(n) {
			return nil, fmt.Errorf("%w: response code %v", billing.ErrUnexpectedType, v)
		}
		b[billing.KeyResponseCode] = billing.ResponseCode(n)
	}

	for _, key := range stringListKeys {
		if _, ok := b[key]; !ok {
			continue
		}
		l, err := billing.StringList(b, key)
		if err != nil {
			return nil, err
		}
		b[key] = l
	}

	if v, ok := b[billing.KeyBuyIntent]; ok {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s is %T", billing.ErrUnexpectedType, billing.KeyBuyIntent, v)
		}

		str := func(key string) string {
			s, _ := m[key].(string)
			return s
		}
		b[billing.KeyBuyIntent] = &billing.PendingIntent{
			ID:               str(intentID),
			SKU:              str(intentSKU),
			ItemType:         billing.ItemType(str(intentItemType)),
			DeveloperPayload: str(intentDeveloperPayload),
		}
	}

	return b, nil
}

func responseCodeStruct(code billing.ResponseCode) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		billing.KeyResponseCode: structpb.NewNumberValue(float64(code)),
	}}
}

func responseCodeFromStruct(s *structpb.Struct) (billing.ResponseCode, error) {
	b, err := decodeBundle(s)
	if err != nil {
		return 0, err
	}
	code, found, err := billing.ResponseCodeOf(b)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%w: missing response code", billing.ErrUnexpectedType)
	}
	return code, nil
}

type request struct {
	*structpb.Struct
}

func newRequest() request {
	return request{&structpb.Struct{Fields: map[string]*structpb.Value{}}}
}

func (r request) set(key string, v *structpb.Value) request {
	r.Fields[key] = v
	return r
}

func (r request) setString(key, v string) request {
	return r.set(key, structpb.NewStringValue(v))
}

// setStrings leaves key unset for a nil list, so the server sees nil again.
func (r request) setStrings(key string, l []string) request {
	if l == nil {
		return r
	}
	v, _ := encodeValue(l)
	return r.set(key, v)
}

func (r request) getString(key string) string {
	return r.Fields[key].GetStringValue()
}

func (r request) getStrings(key string) ([]string, error) {
	v, ok := r.Fields[key]
	if !ok {
		return nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: %s is not a list", billing.ErrUnexpectedType, key)
	}

	out := make([]string, 0, len(list.Values))
	for _, item := range list.Values {
		s, ok := item.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("%w: %s contains a non string", billing.ErrUnexpectedType, key)
		}
		out = append(out, s.StringValue)
	}
	return out, nil
}
