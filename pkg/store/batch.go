// Package store defines the persistence contracts of the write path: the
// statement batch staged by a Unit-of-Work, the event/snapshot/outbox stores,
// and the read-model row types.
package store

// StatementKind tags a staged statement for diagnostics and metrics.
type StatementKind string

const (
	StatementInsert StatementKind = "insert"
	StatementUpdate StatementKind = "update"
	StatementDelete StatementKind = "delete"
	StatementUpsert StatementKind = "upsert"
)

// Statement is one prepared statement with bound parameters.
type Statement struct {
	Kind StatementKind
	SQL  string
	Args []any
}

// Batch is the ordered list of statements staged by one logical
// transaction. It is not safe for concurrent use; a Unit-of-Work owns its
// batch exclusively.
type Batch struct {
	statements []Statement
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Add stages a statement at the end of the batch.
func (b *Batch) Add(kind StatementKind, sql string, args ...any) {
	b.statements = append(b.statements, Statement{Kind: kind, SQL: sql, Args: args})
}

// Statements returns the staged statements in submission order.
func (b *Batch) Statements() []Statement {
	return b.statements
}

// Len returns the number of staged statements.
func (b *Batch) Len() int {
	return len(b.statements)
}
