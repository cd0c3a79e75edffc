package domain

// PaymentMetrics is the aggregated snapshot served by the payment
// metrics endpoint. Values are cumulative since process start.
type PaymentMetrics struct {
	TotalRequests      int64   `json:"total_requests"`
	ErrorRate          float64 `json:"error_rate"`
	PixPaymentsCreated int64   `json:"pix_payments_created"`
	CardPaymentsMade   int64   `json:"card_payments_made"`
	ValidationsOK      int64   `json:"validations_succeeded"`
	ValidationsFailed  int64   `json:"validations_failed"`
	ValidationsExpired int64   `json:"validations_expired"`
	StatusPolls        int64   `json:"status_polls"`
	CacheHitRate       float64 `json:"cache_hit_rate"`
	Period             string  `json:"period"`
}
