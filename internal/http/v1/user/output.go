package user

// PersonasListData is the body of the persona list.
type PersonasListData struct {
	Personas []Persona `json:"personas" doc:"Page of personas"`
	Total    int       `json:"total"    doc:"Number of personas matching the filter" example:"1"`
}

// PersonasListOutput carries the RFC 8288 Link header for paging.
type PersonasListOutput struct {
	Link string `header:"Link" doc:"RFC 8288 pagination links"`
	Body PersonasListData
}

// PersonaGetOutput for GET /user/personas/{personaId}
type PersonaGetOutput struct {
	Body Persona
}

// ChatOutput for POST /user/chat
type ChatOutput struct {
	Body ChatReply
}
