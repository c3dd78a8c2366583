package ingest

// Result holds the outcome of an import of historical sessions.
type Result struct {
	SessionsReceived int `json:"sessions_received"`
	SessionsImported int `json:"sessions_imported"`
	SessionsSkipped  int `json:"sessions_skipped"`
	SetsImported     int `json:"sets_imported"`
	RecordsBroken    int `json:"records_broken"`

	Message string `json:"message,omitempty"`
}
