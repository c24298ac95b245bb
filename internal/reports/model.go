package reports

import "time"

// DonorShipmentData is the materialized rollup of one donor's items within
// one shipment. Rows exist only while the donor has at least one package
// item in the shipment.
type DonorShipmentData struct {
	ID                   int64   `json:"id"`
	DonorID              int64   `json:"donor_id"`
	ShipmentID           int64   `json:"shipment_id"`
	PackageCount         int     `json:"package_count"`
	ItemCount            int     `json:"item_count"`
	DeliveredCount       int     `json:"delivered_count"`
	PercentageOfShipment int     `json:"percentage_of_shipment"`
	PriceUSD             float64 `json:"price_usd"`
	PriceLocal           float64 `json:"price_local"`
}

// DonorCategoryData is the materialized rollup of one donor's items within
// one item category, across all shipments.
type DonorCategoryData struct {
	ID                int64      `json:"id"`
	DonorID           int64      `json:"donor_id"`
	ItemCategoryID    int64      `json:"item_category_id"`
	ItemCount         int        `json:"item_count"`
	TotalQuantity     int64      `json:"total_quantity"`
	PriceUSD          float64    `json:"price_usd"`
	PriceLocal        float64    `json:"price_local"`
	FirstShipmentDate *time.Time `json:"first_shipment_date,omitempty"`
	LastShipmentDate  *time.Time `json:"last_shipment_date,omitempty"`
}
