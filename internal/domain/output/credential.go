package output

// Credential is the token endpoint response. Role is server-assigned and
// is the only source clients may derive host status from.
type Credential struct {
	Token    string `json:"token"`
	URL      string `json:"url"`
	Role     string `json:"role"`
	PipToken string `json:"piptoken,omitempty"`
}
