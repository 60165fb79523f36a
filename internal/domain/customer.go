package domain

import "strings"

// CustomerInfo содержит данные покупателя для оформления заказа.
type CustomerInfo struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// Normalize обрезает пробелы по краям всех полей.
func (c CustomerInfo) Normalize() CustomerInfo {
	return CustomerInfo{
		Name:    strings.TrimSpace(c.Name),
		Email:   strings.TrimSpace(c.Email),
		Address: strings.TrimSpace(c.Address),
		Phone:   strings.TrimSpace(c.Phone),
	}
}

// Identity описывает текущего пользователя и его bearer-токен.
type Identity struct {
	UserID string
	Token  string
}

// Profile хранит профиль пользователя, сохранённый при входе.
type Profile struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}
