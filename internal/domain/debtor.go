package domain

import "time"

// DebtorProfile is the personal and credit data of the person being called.
// Only one profile is current at a time; a new intake replaces it.
type DebtorProfile struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Phone        string    `json:"phone"`
	Amount       float64   `json:"amount"`
	CreditExpire string    `json:"creditExpire"`
	FamilyStatus string    `json:"familyStatus"`
	Income       float64   `json:"income"`
	EGN          string    `json:"egn"`
	Address      string    `json:"address"`
	Age          int       `json:"age"`
	Job          string    `json:"job"`
	CreatedAt    time.Time `json:"createdAt"`
}

// FullName joins first and last name, skipping empty parts.
func (p DebtorProfile) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}
