package pagination

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Params embeds into Huma input structs for paginated list operations.
type Params struct {
	Cursor string `query:"cursor" doc:"Opaque cursor taken from a previous Link header"`
	Limit  int    `query:"limit"  doc:"Maximum items per page"                          default:"20" minimum:"1" maximum:"100"`
}

// EffectiveLimit clamps the requested limit into [1, 100], using 20 when unset.
func (p Params) EffectiveLimit() int {
	switch {
	case p.Limit <= 0:
		return defaultLimit
	case p.Limit > maxLimit:
		return maxLimit
	default:
		return p.Limit
	}
}
