package model

// CredentialState tracks whether the stored access token can be used.
type CredentialState int

const (
	// CredentialAbsent means nobody has logged in yet.
	CredentialAbsent CredentialState = iota
	// CredentialValid is a token that has not been rejected so far.
	CredentialValid
	// CredentialRejected is a token the API answered 401 for. A new login
	// replaces it.
	CredentialRejected
)

func (s CredentialState) String() string {
	switch s {
	case CredentialValid:
		return "valid"
	case CredentialRejected:
		return "rejected"
	default:
		return "absent"
	}
}

// Credential is the current OAuth access token and its state.
type Credential struct {
	AccessToken string
	State       CredentialState
}

// Usable reports whether API calls should be attempted with this credential.
func (c Credential) Usable() bool {
	return c.State == CredentialValid && c.AccessToken != ""
}
