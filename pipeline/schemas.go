package pipeline

// Structured-output contracts for the three LLM call sites. Field tags drive
// both the schema advertised in the prompt and the validation applied to the
// decoded response.

type planOutput struct {
	Title    string      `json:"title" description:"Presentation title"`
	Theme    string      `json:"theme,omitempty" description:"Suggested visual theme"`
	Audience string      `json:"audience,omitempty" description:"Identified target audience"`
	Slides   []planSlide `json:"slides" description:"Ordered slide outlines"`
}

type planSlide struct {
	Order   int    `json:"order" description:"Slide position, 1-based"`
	Title   string `json:"title" description:"Slide title"`
	Outline string `json:"outline" description:"Detailed content outline"`
	Notes   string `json:"notes,omitempty" description:"Presenter speaking points"`
}

type layoutOutput struct {
	Layout    string `json:"layout" description:"Name of the chosen layout template"`
	Rationale string `json:"rationale,omitempty" description:"One sentence on why this layout fits"`
}

type contentOutput struct {
	Title          string `json:"title" description:"Final slide title"`
	HTMLContent    string `json:"html_content" description:"Semantic HTML for the slide body"`
	PresenterNotes string `json:"presenter_notes,omitempty" description:"Speaking notes for the presenter"`
}
