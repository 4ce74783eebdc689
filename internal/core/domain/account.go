package domain

import "time"

// Credentials identify an account. Passphrase is the authentication secret
// derived on the client; it is hashed on arrival and never stored.
type Credentials struct {
	Username   string `json:"username" validate:"required,max=128,printascii"`
	Passphrase string `json:"passphrase" validate:"required,max=72"`
}

// Account is the unit of vault ownership.
type Account struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	SecretHash string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}
