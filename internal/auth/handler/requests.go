package handler

// loginRequest is the single login endpoint's body. The action field selects
// the flow; the other fields are read according to the action:
//
//	verify_password: identifier, password
//	request_otp:     identifier, channel, purpose
//	verify_otp:      identifier, code, purpose
type loginRequest struct {
	Action     string `json:"action"`
	Identifier string `json:"identifier"`
	Password   string `json:"password,omitempty"`
	Code       string `json:"code,omitempty"`
	Channel    string `json:"channel,omitempty"`
	Purpose    string `json:"purpose,omitempty"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

const (
	actionVerifyPassword = "verify_password"
	actionRequestOTP     = "request_otp"
	actionVerifyOTP      = "verify_otp"
)
