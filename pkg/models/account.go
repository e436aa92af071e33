package models

// AccountRole is the kind of account a user holds on the platform. It is
// carried in the access token and is independent of any interview.
type AccountRole string

const (
	AccountAssociate  AccountRole = "associate"
	AccountFreelancer AccountRole = "freelancer"
)

func (r AccountRole) Valid() bool {
	return r == AccountAssociate || r == AccountFreelancer
}
