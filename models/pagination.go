package models

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

// Page is offset pagination as exposed by the list endpoints (?skip=&limit=).
type Page struct {
	Skip  int `form:"skip"`
	Limit int `form:"limit"`
}

// Normalize clamps skip to >= 0 and limit to 1..MaxPageLimit (0 means default).
func (p Page) Normalize() Page {
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}
