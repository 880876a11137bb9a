package session

// Session is the authenticated identity returned by the upstream.
//
// A Session is either fully populated or treated as absent: every constructor
// path (transport decode, record decode, cache replace) checks Valid.
type Session struct {
	AccessToken  string `json:"access_credential"`
	RefreshToken string `json:"refresh_credential"`
	AccountID    string `json:"account_id"`
}

// Valid reports whether all three fields are present.
func (s Session) Valid() bool {
	return s.AccessToken != "" && s.RefreshToken != "" && s.AccountID != ""
}
