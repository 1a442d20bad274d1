package domain

// PriceList is a partner's structured catalog submission.
type PriceList struct {
	ShopName   string
	Categories []PriceListCategory
	Items      []PriceListItem
}

// PriceListCategory maps a partner-local category reference to a name
type PriceListCategory struct {
	ExternalID string `validate:"required"`
	Name       string `validate:"required,max=80"`
}

// PriceListItem is one row of a price list
type PriceListItem struct {
	ExternalSKU string            `validate:"required,max=64"`
	CategoryRef string            `validate:"required"`
	Name        string            `validate:"required,max=200"`
	Model       string            `validate:"max=200"`
	Price       int64             `validate:"gte=0"`
	PriceRRC    int64             `validate:"gte=0"`
	Quantity    int               `validate:"gte=0"`
	Parameters  map[string]string `validate:"dive,keys,required,endkeys"`
}
