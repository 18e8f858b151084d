package models

// Requests for the signal query HTTP endpoints. Defined in domain for consistency and reuse.

type SignalsRequest struct {
	Level     string `query:"level" json:"level" default:"" validate:"omitempty,oneof=A0 A1 A2"`
	Direction string `query:"direction" json:"direction" default:"" validate:"omitempty,oneof=LONG SHORT"`
	Limit     int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type SymbolRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
}

type LogsRequest struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}
