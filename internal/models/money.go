package models

import "github.com/shopspring/decimal"

// MoneyPlaces is the scale of every stored price and amount.
const MoneyPlaces = 2

// MinPrice is the lowest price an instrument can trade at.
var MinPrice = decimal.New(1, -MoneyPlaces)

// RoundMoney rounds half away from zero to two decimal places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}
