package models

import "time"

// Admin is the single principal allowed into the dashboard.
type Admin struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AdminProfile is the public view of an Admin returned by the API.
type AdminProfile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (a Admin) Profile() AdminProfile {
	return AdminProfile{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
	}
}
