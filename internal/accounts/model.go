package accounts

// Account is one row of the profiles table: a mailbox and the GoLogin
// profile assigned to it.
type Account struct {
	ID        int64
	Email     string
	Password  string
	ProfileID string // empty when no profile was provisioned
	Active    *bool
}

// Credentials are what a flow needs to sign in.
type Credentials struct {
	Email    string
	Password string
}

func (a Account) Credentials() Credentials {
	return Credentials{Email: a.Email, Password: a.Password}
}

// HasProfile reports whether the account carries an identity token.
func (a Account) HasProfile() bool {
	return a.ProfileID != ""
}
