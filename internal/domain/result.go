package domain

// BatchResult is the outcome of a batch limit-order execution pass. Callers
// branch on the counts, never on the message text.
type BatchResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	ExecutedCount int    `json:"executed_count"`
	FailedCount   int    `json:"failed_count"`
	SkippedCount  int    `json:"skipped_count"`
}

// ExpiryResult is the outcome of a limit-order expiry sweep.
type ExpiryResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	ExpiredCount int    `json:"expired_count"`
	FailedCount  int    `json:"failed_count"`
}

// SettlementResult is the outcome of a market or fast-pool settlement pass.
// One failed payout never blocks the rest of the batch; the failed count is
// the retry queue for the next sweep.
type SettlementResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	SettledPools int    `json:"settled_pools,omitempty"`
	PaidCount    int    `json:"paid_count"`
	LostCount    int    `json:"lost_count"`
	FailedCount  int    `json:"failed_count"`
}

// RefundResult is the outcome of a pause-and-refund pass over one asset.
type RefundResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	PausedPools  int    `json:"paused_pools"`
	RefundedBets int    `json:"refunded_bets"`
	FailedBets   int    `json:"failed_bets"`
}

// RolloverResult is the outcome of a round-rollover pass.
type RolloverResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	OpenedCount int    `json:"opened_count"`
	FailedCount int    `json:"failed_count"`
}
