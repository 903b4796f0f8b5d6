package models

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 50
)

// Page is the skip/limit/reverse window shared by list endpoints.
type Page struct {
	Skip    int
	Limit   int
	Reverse bool
}

// Normalize clamps the window to sane bounds.
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

// Direction returns the SQL sort keyword for the window.
func (p Page) Direction() string {
	if p.Reverse {
		return "DESC"
	}
	return "ASC"
}
