package models

// Requests for the workflow HTTP endpoints. Defined in domain for consistency
// and reuse.

type SnapshotRequest struct {
	Band        string `query:"band" json:"band" validate:"omitempty,oneof=trade_ready watch ignore"`
	Interaction string `query:"interaction" json:"interaction" validate:"omitempty,oneof=testing inside outside"`
	HTF         string `query:"htf" json:"htf" validate:"omitempty,oneof=bullish bearish neutral"`
	Symbol      string `query:"symbol" json:"symbol" validate:"omitempty,max=32"`
}

type SignalsRequest struct {
	Kind   string `query:"kind" json:"kind" validate:"omitempty,oneof=volume_zscore cvd_momentum"`
	Symbol string `query:"symbol" json:"symbol" validate:"omitempty,max=32"`
}
