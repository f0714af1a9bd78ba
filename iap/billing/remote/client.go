package remote

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/code-payments/cashier/iap"
	"github.com/code-payments/cashier/iap/billing"
)

// Client is a billing.Service backed by a remote Server. Any error it returns
// is a transport failure; billing outcomes travel as response codes.
type Client struct {
	cc          grpc.ClientConnInterface
	packageName string
}

func NewClient(cc grpc.ClientConnInterface, packageName string) *Client {
	return &Client{
		cc:          cc,
		packageName: packageName,
	}
}

func (c *Client) CheckSupport(ctx context.Context, itemType billing.ItemType) (billing.ResponseCode, error) {
	req := newRequest().setString(fieldItemType, string(itemType))

	resp, err := c.invoke(ctx, "CheckSupport", req)
	if err != nil {
		return 0, err
	}

	code, err := responseCodeFromStruct(resp)
	if err != nil {
		return 0, errors.Wrap(err, "invalid CheckSupport response")
	}
	return code, nil
}

func (c *Client) FetchDetails(ctx context.Context, itemType billing.ItemType, skus []string) (iap.Bundle, error) {
	req := newRequest().
		setString(fieldItemType, string(itemType)).
		setStrings(fieldSKUs, skus)

	return c.invokeBundle(ctx, "FetchDetails", req)
}

func (c *Client) RequestPurchaseIntent(ctx context.Context, sku string, itemType billing.ItemType, developerPayload string) (iap.Bundle, error) {
	req := newRequest().
		setString(fieldSKU, sku).
		setString(fieldItemType, string(itemType)).
		setString(fieldDeveloperPayload, developerPayload)

	return c.invokeBundle(ctx, "RequestPurchaseIntent", req)
}

func (c *Client) ListPurchases(ctx context.Context, itemType billing.ItemType, continuationToken string) (iap.Bundle, error) {
	req := newRequest().
		setString(fieldItemType, string(itemType)).
		setString(fieldContinuationToken, continuationToken)

	return c.invokeBundle(ctx, "ListPurchases", req)
}

func (c *Client) Consume(ctx context.Context, token string) (billing.ResponseCode, error) {
	req := newRequest().setString(fieldToken, token)

	resp, err := c.invoke(ctx, "Consume", req)
	if err != nil {
		return 0, err
	}

	code, err := responseCodeFromStruct(resp)
	if err != nil {
		return 0, errors.Wrap(err, "invalid Consume response")
	}
	return code, nil
}

func (c *Client) invokeBundle(ctx context.Context, method string, req request) (iap.Bundle, error) {
	resp, err := c.invoke(ctx, method, req)
	if err != nil {
		return nil, err
	}

	b, err := decodeBundle(resp)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s response", method)
	}
	return b, nil
}

func (c *Client) invoke(ctx context.Context, method string, req request) (*structpb.Struct, error) {
	ctx = metadata.AppendToOutgoingContext(ctx,
		MetadataPackageName, c.packageName,
		MetadataAPIVersion, strconv.Itoa(billing.APIVersion),
	)

	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req.Struct, resp); err != nil {
		return nil, errors.Wrapf(err, "failed to call %s", method)
	}
	return resp, nil
}
