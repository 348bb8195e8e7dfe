package extraction

import (
	"fmt"
	"time"
)

const systemPrompt = `You extract structured knowledge from personal journal entries.

Return a single JSON object with metadata, entities, relationships, todos and events.

Rules:
- Give every entity, todo and event an id that is unique within this response: entities e1, e2, ...; todos t1, t2, ...; events ev1, ev2, ...
- Relationships reference entity ids in "source" and "target". If the target is not a known entity, set "target" to null.
- related_entities lists entity ids only.
- Resolve relative dates and times ("tomorrow", "next Friday", "tonight") against the reference datetime and timezone given with the entry.
- Write every datetime in ISO-8601 with an offset, e.g. 2025-03-14T18:30:00+05:30. Write dates without a time as YYYY-MM-DD.
- Todo priority is one of must_do, high, normal, low, nice_to_have.
- Set should_sync_calendar to true only for events with a concrete date and time the writer intends to attend.
- Do not invent facts that are not in the entry. Empty arrays are fine.`

const fewShotExamples = `Example

Reference datetime: 2025-03-13T21:10:00+05:30 (Asia/Kolkata)
Journal Entry: Had coffee with Priya at Blue Tokai. She recommended a book on habits. Need to call the dentist tomorrow morning. Team offsite on Friday at 10am in Indiranagar for 3 hours.

Output:
{"metadata":{"entry_datetime":"2025-03-13T21:10:00+05:30","source_title":null,"timezone":"Asia/Kolkata"},
"entities":[{"id":"e1","name":"Priya","type":"person","attributes":{}},{"id":"e2","name":"Blue Tokai","type":"location","attributes":{"kind":"cafe"}},{"id":"e3","name":"Indiranagar","type":"location","attributes":{}}],
"relationships":[{"source":"e1","type":"meeting","target":"e2","description":"Had coffee with Priya at Blue Tokai","datetime":"2025-03-13"},{"source":"e1","type":"recommendation","target":null,"description":"Priya recommended a book on habits","datetime":null}],
"todos":[{"id":"t1","task":"Call the dentist","priority":"high","due":"2025-03-14T09:00:00+05:30","related_entities":[]}],
"events":[{"id":"ev1","title":"Team offsite","datetime":"2025-03-14T10:00:00+05:30","location":"Indiranagar","duration_minutes":180,"related_entities":["e3"],"should_sync_calendar":true}]}`

func userPrompt(content string, ref time.Time, tz string) string {
	return fmt.Sprintf("Reference datetime: %s (%s)\nJournal Entry: %s\n\nOutput:",
		ref.Format(time.RFC3339), tz, content)
}
