package domain

// Broker return codes the engine distinguishes.
const (
	RetcodeRequote        = 10004
	RetcodeDone           = 10009
	RetcodeTimeout        = 10012
	RetcodeInvalidRequest = 10013
	RetcodeInvalidVolume  = 10014
	RetcodeInvalidStops   = 10016
	RetcodeMarketClosed   = 10018
	RetcodeNoMoney        = 10019
	RetcodePriceChanged   = 10020
	RetcodeOffQuotes      = 10021
	RetcodeTooMany        = 10024
	RetcodeNoConnection   = 10031
)

// OrderRequest is a market order with protective stops.
type OrderRequest struct {
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Volume     float64 `json:"volume"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Comment    string  `json:"comment,omitempty"`
}

// OrderResult is the broker's answer to a submitted order.
type OrderResult struct {
	Success bool    `json:"success"`
	Ticket  int64   `json:"ticket,omitempty"`
	Price   float64 `json:"price,omitempty"`
	Retcode int     `json:"retcode"`
	Message string  `json:"message"`
}

// Final reports whether the rejection is semantic and must not be retried.
func (r OrderResult) Final() bool {
	if r.Success {
		return true
	}
	switch r.Retcode {
	case RetcodeMarketClosed, RetcodeInvalidRequest, RetcodeInvalidVolume,
		RetcodeInvalidStops, RetcodeNoMoney:
		return true
	}
	return !r.Transient()
}

// Transient reports whether resubmitting may succeed.
func (r OrderResult) Transient() bool {
	if r.Success {
		return false
	}
	switch r.Retcode {
	case 0, RetcodeRequote, RetcodeTimeout, RetcodePriceChanged, RetcodeOffQuotes,
		RetcodeTooMany, RetcodeNoConnection:
		return true
	}
	return false
}
