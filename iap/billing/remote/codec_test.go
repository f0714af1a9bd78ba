package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/code-payments/cashier/iap"
	"github.com/code-payments/cashier/iap/billing"
)

func TestCodec_Bundle(t *testing.T) {
	b := iap.Bundle{
		billing.KeyResponseCode: billing.ResponseOK,
		billing.KeyDetailsList:  []string{`{"productId":"coffee"}`},
		billing.KeyBuyIntent: &billing.PendingIntent{
			ID:               "intent",
			SKU:              "coffee",
			ItemType:         billing.ItemTypeInApp,
			DeveloperPayload: "payload",
		},
		billing.KeyContinuationToken: "next",
	}

	encoded, err := encodeBundle(b)
	require.NoError(t, err)

	// Through the wire format and back.
	data, err := proto.Marshal(encoded)
	require.NoError(t, err)
	var received structpb.Struct
	require.NoError(t, proto.Unmarshal(data, &received))
	assert.True(t, proto.Equal(encoded, &received))

	decoded, err := decodeBundle(&received)
	require.NoError(t, err)
	assert.Equal(t, b, decoded)
}

func TestCodec_EmptyLists(t *testing.T) {
	encoded, err := encodeBundle(iap.Bundle{billing.KeyPurchaseItemList: []string{}})
	require.NoError(t, err)

	decoded, err := decodeBundle(encoded)
	require.NoError(t, err)
	assert.Equal(t, []string{}, decoded[billing.KeyPurchaseItemList])
}

func TestCodec_Invalid(t *testing.T) {
	_, err := encodeBundle(iap.Bundle{"channel": make(chan int)})
	assert.Error(t, err)

	for _, s := range []*structpb.Struct{
		{Fields: map[string]*structpb.Value{billing.KeyResponseCode: structpb.NewStringValue("OK")}},
		{Fields: map[string]*structpb.Value{billing.KeyResponseCode: structpb.NewNumberValue(1.5)}},
		{Fields: map[string]*structpb.Value{billing.KeyBuyIntent: structpb.NewStringValue("intent")}},
		{Fields: map[string]*structpb.Value{billing.KeyDetailsList: structpb.NewStringValue("details")}},
	} {
		_, err := decodeBundle(s)
		assert.Error(t, err)
	}
}

func TestRequest(t *testing.T) {
	req := newRequest().
		setString(fieldSKU, "coffee").
		setStrings(fieldSKUs, nil)

	assert.Equal(t, "coffee", req.getString(fieldSKU))
	assert.Empty(t, req.getString(fieldToken))

	skus, err := req.getStrings(fieldSKUs)
	require.NoError(t, err)
	assert.Nil(t, skus)

	req.setStrings(fieldSKUs, []string{"a", "b"})
	skus, err = req.getStrings(fieldSKUs)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, skus)

	req.setString(fieldSKUs, "a")
	_, err = req.getStrings(fieldSKUs)
	assert.Error(t, err)
}
