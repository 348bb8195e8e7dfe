package jobs

// Job types of the journal pipeline.
const (
	TypeExtractEntry     = "EXTRACT_ENTRY"
	TypeIngestGraph      = "INGEST_GRAPH"
	TypeIngestVectors    = "INGEST_VECTORS"
	TypeMaterializeTodos = "MATERIALIZE_TODOS"
	TypeSyncCalendar     = "SYNC_CALENDAR"
)

// EntryPayload is the payload of EXTRACT_ENTRY. Version is the entry
// version the job was enqueued for; a newer write supersedes it.
type EntryPayload struct {
	EntryID uint64 `json:"entry_id"`
	Version uint64 `json:"version"`
}

// FanOutTypes are the independent jobs enqueued once an entry is extracted.
var FanOutTypes = []string{
	TypeIngestGraph,
	TypeIngestVectors,
	TypeMaterializeTodos,
	TypeSyncCalendar,
}
