package models

// Dataset is an ordered collection of listings with unique identity keys.
type Dataset struct {
	Listings []Listing `json:"listings"`
}

func NewDataset(listings ...Listing) *Dataset {
	return &Dataset{Listings: listings}
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Listings)
}

// Append adds a listing at the end, preserving arrival order.
func (d *Dataset) Append(l Listing) {
	d.Listings = append(d.Listings, l)
}

// Keys returns the identity key of every listing, in order.
func (d *Dataset) Keys() []string {
	keys := make([]string, 0, d.Len())
	for i := range d.Listings {
		keys = append(keys, d.Listings[i].Key())
	}
	return keys
}

// Filter reasons, one per ordered quality check.
type FilterReason string

const (
	ReasonTooFewImages   FilterReason = "too few images"
	ReasonBannedTerm     FilterReason = "banned term"
	ReasonMultipleCards  FilterReason = "multiple cards listing detected"
	ReasonGradeExtracted FilterReason = "grade extracted"
	ReasonMissingGrade   FilterReason = "missing grade"
	ReasonPassed         FilterReason = "passed all filters"
)

// Decision is the keep/reject verdict for one listing.
type Decision struct {
	Reject bool         `json:"reject"`
	Reason FilterReason `json:"reason"`
	Detail string       `json:"detail,omitempty"`
}

// CleanupResult tallies the cascading deletion of one or more listings' assets.
type CleanupResult struct {
	FilesDeleted       int      `json:"files_deleted"`
	DirectoriesDeleted int      `json:"directories_deleted"`
	DirectoriesKept    []string `json:"directories_kept,omitempty"`
	Failures           int      `json:"failures"`
}

// Add folds another result into r.
func (r *CleanupResult) Add(o CleanupResult) {
	r.FilesDeleted += o.FilesDeleted
	r.DirectoriesDeleted += o.DirectoriesDeleted
	r.DirectoriesKept = append(r.DirectoriesKept, o.DirectoriesKept...)
	r.Failures += o.Failures
}

// FilterSummary is produced by every filtering run, even a partially failed one.
type FilterSummary struct {
	Total            int                  `json:"total"`
	Kept             int                  `json:"kept"`
	Filtered         int                  `json:"filtered"`
	Reasons          map[FilterReason]int `json:"reasons"`
	GradesBackfilled int                  `json:"grades_backfilled"`
	Cleanup          CleanupResult        `json:"cleanup"`
	Result           ResultCode           `json:"result"`
}

// MergeStats describes a merge of several datasets.
type MergeStats struct {
	Inputs            int        `json:"inputs"`
	TotalIn           int        `json:"total_in"`
	DuplicatesDropped int        `json:"duplicates_dropped"`
	TotalOut          int        `json:"total_out"`
	Result            ResultCode `json:"result"`
}

// IngestSummary describes one normalization pass over raw listings.
type IngestSummary struct {
	Received     int        `json:"received"`
	Accepted     int        `json:"accepted"`
	Duplicates   int        `json:"duplicates"`
	Invalid      int        `json:"invalid"`
	URLsRejected int        `json:"urls_rejected"`
	ImagesSaved  int        `json:"images_saved"`
	ImagesFailed int        `json:"images_failed"`
	Result       ResultCode `json:"result"`
}
