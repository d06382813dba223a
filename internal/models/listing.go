package models

// Listing is the read-only projection of a marketplace listing that the
// negotiation engine needs. Listings are owned by the catalogue service.
type Listing struct {
	ID       string `db:"id" json:"id"`
	SellerID string `db:"seller_id" json:"seller_id"`
	Title    string `db:"title" json:"title"`
	Price    int64  `db:"price" json:"price"`
	Currency string `db:"currency" json:"currency"`
}
