package goNoPass

// AuthRequest is the payload signed and sent to start a challenge.
type AuthRequest struct {
	Email string `json:"email"`
}

// AuthResponse is the server reply to SendAuth.
//
// Token correlates the later SendValidation call with this challenge and
// must be passed back unmodified.
type AuthResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	// Code is echoed only by development servers that skip the email step.
	Code string `json:"code,omitempty"`
}

// ValidationRequest is the payload signed and sent to complete a challenge.
type ValidationRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
	Token string `json:"token"`
}

// ValidationResponse is the server reply to SendValidation. JWT is the final
// session credential; its contents are opaque to this package.
type ValidationResponse struct {
	Message string `json:"message"`
	JWT     string `json:"jwt"`
}
