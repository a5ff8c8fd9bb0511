package enums

// TimelineEntryType distinguishes purchase and payment rows in a tab timeline.
type TimelineEntryType string

const (
	TimelineEntryPurchase TimelineEntryType = "purchase"
	TimelineEntryPayment  TimelineEntryType = "payment"
)
