package protocol

import (
	"encoding/json"
	"time"
)

const (
	SubjectScriptsList   = "muse.scripts.list"
	SubjectScriptsGet    = "muse.scripts.get"
	SubjectScriptsInsert = "muse.scripts.insert"
	SubjectScriptsDelete = "muse.scripts.delete"
	SubjectPhrasesQuery  = "muse.phrases.query"
	SubjectCacheResolve  = "muse.cache.resolve"
	SubjectExportRequest = "muse.export.request"
)

// Script is the wire form of a stored script.
type Script struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ScriptRef addresses a script by identifier.
type ScriptRef struct {
	ID string `json:"id"`
}

// InsertScript creates a script when ID is empty and upserts otherwise.
type InsertScript struct {
	ID        string    `json:"id,omitempty"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type Phrases struct {
	ScriptID  string   `json:"script_id"`
	Items     []string `json:"items"`
	Truncated bool     `json:"truncated"`
}

type CacheResolve struct {
	VoiceID string `json:"voice_id"`
	Phrase  string `json:"phrase"`
}

type CachePath struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

type ExportRequest struct {
	ScriptID   string `json:"script_id"`
	VoiceID    string `json:"voice_id,omitempty"`
	OutputPath string `json:"output_path,omitempty"` // relative to the export directory
}

// Reply is the envelope of every response. NotFound is set, with OK true,
// when the addressed script does not exist.
type Reply struct {
	OK       bool            `json:"ok"`
	NotFound bool            `json:"not_found,omitempty"`
	Error    string          `json:"error,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}
