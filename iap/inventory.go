package iap

// Inventory is the result of an inventory query: what the user owns and the
// details of the products that were asked about.
type Inventory struct {
	Purchases []*Purchase
	Products  []*Product
}

func (i *Inventory) AddPurchase(purchase *Purchase) {
	if purchase == nil {
		panic("iap: nil purchase")
	}
	i.Purchases = append(i.Purchases, purchase)
}

func (i *Inventory) AddPurchases(purchases ...*Purchase) {
	for _, purchase := range purchases {
		i.AddPurchase(purchase)
	}
}

func (i *Inventory) AddProduct(product *Product) {
	if product == nil {
		panic("iap: nil product")
	}
	i.Products = append(i.Products, product)
}

func (i *Inventory) AddProducts(products ...*Product) {
	for _, product := range products {
		i.AddProduct(product)
	}
}

// Product returns the product with the given SKU, if present.
func (i *Inventory) Product(sku string) (*Product, bool) {
	for _, p := range i.Products {
		if p.SKU == sku {
			return p, true
		}
	}
	return nil, false
}
