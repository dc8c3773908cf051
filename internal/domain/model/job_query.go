//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

// JobListOptions groups parameters for listing one owner's jobs with
// optional filters.
type JobListOptions struct {
	Status    *JobStatus // Optional filter by status (pending, processing, completed, failed, cancelled)
	Type      *JobType   // Optional filter by type
	ListID    *string    // Optional filter by list_id
	SortBy    string     // Sort field: "created_at", "status", "type" (default: "created_at")
	SortOrder string     // Sort order: "asc", "desc" (default: "desc")
	Limit     int        // Pagination limit
	Offset    int        // Pagination offset
}

// JobListPage is one page of an owner's jobs plus the unpaginated total for
// the same filters.
type JobListPage struct {
	Jobs  []*Job `json:"jobs"`
	Total int    `json:"total"`
}
