package extraction

// Result is the structured knowledge derived from one journal entry.
// Entity, todo and event ids are local to a single Result.
type Result struct {
	Metadata      Metadata       `json:"metadata"`
	Entities      []Entity       `json:"entities" validate:"required,dive"`
	Relationships []Relationship `json:"relationships" validate:"required,dive"`
	Todos         []Todo         `json:"todos" validate:"required,dive"`
	Events        []Event        `json:"events" validate:"required,dive"`
}

type Metadata struct {
	EntryDatetime string `json:"entry_datetime,omitempty"`
	SourceTitle   string `json:"source_title,omitempty"`
	Timezone      string `json:"timezone,omitempty"`
}

type Entity struct {
	ID             string         `json:"id" validate:"required"`
	Name           string         `json:"name" validate:"required"`
	NormalizedName string         `json:"normalized_name,omitempty"`
	Type           string         `json:"type" validate:"required"`
	Attributes     map[string]any `json:"attributes,omitempty"`
}

// Relationship links two entities of the same Result. Target may be empty or
// the literal "null" when the model could not resolve it.
type Relationship struct {
	Source      string `json:"source" validate:"required"`
	Type        string `json:"type" validate:"required"`
	Target      string `json:"target"`
	Description string `json:"description"`
	Datetime    string `json:"datetime,omitempty"`
}

// HasTarget reports whether the relationship names a usable target.
func (r Relationship) HasTarget() bool {
	return r.Target != "" && r.Target != "null"
}

type Todo struct {
	ID              string   `json:"id" validate:"required"`
	Task            string   `json:"task" validate:"required"`
	Priority        string   `json:"priority,omitempty"`
	Due             string   `json:"due,omitempty"`
	RelatedEntities []string `json:"related_entities,omitempty"`
}

type Event struct {
	ID                 string   `json:"id" validate:"required"`
	Title              string   `json:"title" validate:"required"`
	Datetime           string   `json:"datetime,omitempty"`
	Location           string   `json:"location,omitempty"`
	DurationMinutes    *int     `json:"duration_minutes,omitempty" validate:"omitempty,min=0"`
	RelatedEntities    []string `json:"related_entities,omitempty"`
	ShouldSyncCalendar bool     `json:"should_sync_calendar"`
}

// Counts is used as vector metadata and in logs.
type Counts struct {
	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`
	Todos         int `json:"todos"`
	Events        int `json:"events"`
}

func (r *Result) Counts() Counts {
	if r == nil {
		return Counts{}
	}
	return Counts{
		Entities:      len(r.Entities),
		Relationships: len(r.Relationships),
		Todos:         len(r.Todos),
		Events:        len(r.Events),
	}
}
