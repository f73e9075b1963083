package domain

// AnalysisResult is the payload returned for an analyzed address.
// Failed analyses keep RelatedAccounts as an empty, non-nil slice.
type AnalysisResult struct {
	Address         string           `json:"address"`
	IsValid         bool             `json:"isValid"`
	RelatedAccounts []RelatedAccount `json:"relatedAccounts"`
	Error           string           `json:"error,omitempty"`
}

// RelatedAccount is a ranked, formatted counterparty.
type RelatedAccount struct {
	Address          string            `json:"address"`
	TotalVolume      string            `json:"totalVolume"`
	Volume           float64           `json:"volume"`
	InteractionCount int               `json:"interactionCount"`
	LastInteraction  int64             `json:"lastInteraction"`
	TransactionTypes []InteractionType `json:"transactionTypes"`
	OnCurve          bool              `json:"onCurve"`
}

// Failed reports whether the result carries an error.
func (r *AnalysisResult) Failed() bool {
	return r.Error != ""
}

// NewFailedResult builds an error payload for address.
func NewFailedResult(address string, valid bool, message string) *AnalysisResult {
	return &AnalysisResult{
		Address:         address,
		IsValid:         valid,
		RelatedAccounts: []RelatedAccount{},
		Error:           message,
	}
}

// Clone returns a deep copy of r.
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	out := *r
	out.RelatedAccounts = make([]RelatedAccount, len(r.RelatedAccounts))
	for i, ra := range r.RelatedAccounts {
		ra.TransactionTypes = append([]InteractionType(nil), ra.TransactionTypes...)
		out.RelatedAccounts[i] = ra
	}
	return &out
}
