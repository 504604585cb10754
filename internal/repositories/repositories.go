package repositories

// scanner abstracts *sql.Row and *sql.Rows so scan helpers serve both.
type scanner interface {
	Scan(dest ...any) error
}
