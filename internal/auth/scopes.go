package auth

const (
	ScopeOpenID       = "openid"
	ScopeProfile      = "profile"
	ScopeEmail        = "email"
	ScopeReviewRead   = "certify:review"
	ScopeReviewDecide = "certify:decide"
)

// AllScopes defines the full set of scopes requested for reviewer sessions.
var AllScopes = []string{
	ScopeOpenID,
	ScopeProfile,
	ScopeEmail,
	ScopeReviewRead,
	ScopeReviewDecide,
}
