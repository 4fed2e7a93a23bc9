// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var symbolRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,19}$`)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("trade_side", validateTradeSide)
		_ = v.RegisterValidation("order_kind", validateOrderKind)
		_ = v.RegisterValidation("symbol", validateSymbol)
	}
}

func validateTradeSide(fl validator.FieldLevel) bool {
	switch strings.ToUpper(fl.Field().String()) {
	case "BUY", "SELL":
		return true
	}
	return false
}

func validateOrderKind(fl validator.FieldLevel) bool {
	switch strings.ToUpper(fl.Field().String()) {
	case "MARKET", "LIMIT":
		return true
	}
	return false
}

func validateSymbol(fl validator.FieldLevel) bool {
	return symbolRegex.MatchString(fl.Field().String())
}
