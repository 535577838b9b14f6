package settings

import "errors"

var (
	ErrMissingAccount  = errors.New("settings: account identity is required")
	ErrMissingUser     = errors.New("settings: username is required")
	ErrMissingAgentID  = errors.New("settings: agent id is required")
	ErrMissingPassword = errors.New("settings: password is required for dispatch")
)

// Settings is the connection/routing configuration for a session: which
// account to talk to, as whom, and which agent answers.
type Settings struct {
	Account   string `json:"account"`
	User      string `json:"username"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	Warehouse string `json:"warehouse"`
	Database  string `json:"database"`
	Schema    string `json:"schema"`
	AgentID   string `json:"agentId"`
	Locale    string `json:"locale"`
}

// Validate reports whether the settings are complete enough to start a
// capture session: account identity, username and agent id must be set.
func (s Settings) Validate() error {
	if s.Account == "" {
		return ErrMissingAccount
	}
	if s.User == "" {
		return ErrMissingUser
	}
	if s.AgentID == "" {
		return ErrMissingAgentID
	}
	return nil
}

// ValidateForDispatch additionally requires credentials. Capture may start
// without a password; the dispatch itself fails closed.
func (s Settings) ValidateForDispatch() error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.Password == "" {
		return ErrMissingPassword
	}
	return nil
}
