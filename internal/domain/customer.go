package domain

import (
	"errors"
	"time"
)

var ErrCustomerNotFound = errors.New("customer not found")
var ErrCustomerAlreadyExists = errors.New("customer already exists")

// Customer owns one or more accounts.
type Customer struct {
	ID        string
	Name      string
	Surname   string
	Email     string
	CreatedAt time.Time
}
