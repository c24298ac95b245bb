package catalog

import "time"

// Donor represents a funding donor. Names are unique.
type Donor struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DonorCode is a T1 reporting code attached to a donor.
type DonorCode struct {
	ID      int64  `json:"id"`
	Code    string `json:"code"`
	DonorID int64  `json:"donor_id"`
}

// Supplier represents a supplier entity.
type Supplier struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Transporter represents a transport company.
type Transporter struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ItemCategory groups catalog items for reporting.
type ItemCategory struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Item is a catalog item. Package items snapshot these fields at creation
// time, so edits here never alter existing shipments.
type Item struct {
	ID             int64   `json:"id"`
	Description    string  `json:"description"`
	Unit           string  `json:"unit"`
	PriceUSD       float64 `json:"price_usd"`
	PriceLocal     float64 `json:"price_local"`
	ItemCategoryID *int64  `json:"item_category_id,omitempty"`
	DonorID        *int64  `json:"donor_id,omitempty"`
	DonorT1ID      *int64  `json:"donor_t1_id,omitempty"`
	SupplierID     *int64  `json:"supplier_id,omitempty"`
	Weight         float64 `json:"weight"`
}
