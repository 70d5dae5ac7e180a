package exception

import "github.com/yanun0323/errors"

var (
	ErrFormat     = errors.New("malformed symbol or identifier")
	ErrRange      = errors.New("quantity, price or value out of bounds")
	ErrSession    = errors.New("trading session timing violation")
	ErrStructural = errors.New("order structure rule violation")
	ErrRisk       = errors.New("risk limit breach")
	ErrState      = errors.New("illegal order state transition")
)

var (
	ErrUnknownOrder   = errors.New("order not found")
	ErrUnknownSymbol  = errors.New("symbol not registered")
	ErrInvalidReport  = errors.New("execution report inconsistent with order")
	ErrEventQueueFull = errors.New("order event queue full")
)
