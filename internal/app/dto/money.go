package dto

import "staybook/internal/domain/shared/money"

type MoneyDTO struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Display  string `json:"display,omitempty"`
}

func MapMoney(value money.Money) MoneyDTO {
	return MoneyDTO{
		Amount:   value.Amount,
		Currency: value.Currency,
		Display:  value.String(),
	}
}

func MapMoneyPtr(value *money.Money) *MoneyDTO {
	if value == nil {
		return nil
	}
	out := MapMoney(*value)
	return &out
}
