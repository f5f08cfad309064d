package model

// Identity is the operator identity decoded from the upstream edge header.
//
// The edge component authenticates the operator and forwards this struct in
// a compact signed token. The gateway decodes it without re-verifying the
// signature; that trust boundary lives upstream.
type Identity struct {
	UserID      string `json:"user_id"`
	OrgID       string `json:"org_id"`
	UserGroupID string `json:"user_group_id"`
	UserType    string `json:"user_type"`
}
