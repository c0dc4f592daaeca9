package models

// PriceStats aggregates non-null prices.
type PriceStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Sum    float64 `json:"sum"`
}

// PricedListing is one row of the most-expensive report.
type PricedListing struct {
	Title          string         `json:"title"`
	GradingCompany GradingCompany `json:"grading_company"`
	Grade          string         `json:"grade"`
	Price          float64        `json:"price"`
	Source         Source         `json:"source"`
	ListingURL     string         `json:"listing_url"`
}

// Report is the summary of one dataset.
type Report struct {
	TotalListings      int                           `json:"total_listings"`
	ByCompany          map[GradingCompany]int        `json:"by_company"`
	ByGrade            map[string]int                `json:"by_grade"`
	BySource           map[Source]int                `json:"by_source"`
	MissingCompany     int                           `json:"missing_company"`
	MissingGrade       int                           `json:"missing_grade"`
	MissingPrice       int                           `json:"missing_price"`
	Price              PriceStats                    `json:"price"`
	PriceByCompany     map[GradingCompany]PriceStats `json:"price_by_company"`
	PriceByGrade       map[string]PriceStats         `json:"price_by_grade"`
	TotalImages        int                           `json:"total_images"`
	TotalImageURLs     int                           `json:"total_image_urls"`
	ListingsWithImages int                           `json:"listings_with_images"`
	ImagesBySource     map[Source]int                `json:"images_by_source"`
	MostExpensive      []PricedListing               `json:"most_expensive"`
}
