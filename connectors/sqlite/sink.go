// Package sqlite provides a sink that mirrors its input into a SQLite table.
//
// The table is created from the input schema. Inserts and updates become
// upserts on the primary key and deletes remove the row, so replayed
// operations after a restart leave the table unchanged. All statements between
// two checkpoints run in one SQL transaction that commits together with the
// node's checkpoint.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/birdayz/kflow/knode"
	"github.com/birdayz/kflow/kstate"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

var ErrInvalidTable = errors.New("invalid table name")

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Factory builds SQLite sinks.
type Factory struct {
	dsn   string
	table string
}

// New returns a sink writing into table of the database at dsn.
func New(dsn, table string) (*Factory, error) {
	if !identifier.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return &Factory{dsn: dsn, table: table}, nil
}

func (f *Factory) InputPorts() []knode.PortHandle {
	return []knode.PortHandle{knode.DefaultPortHandle}
}

func (f *Factory) Build(inputs map[knode.PortHandle]knode.Schema) (knode.Sink, error) {
	schema, err := knode.SchemaRequired(inputs, knode.DefaultPortHandle)
	if err != nil {
		return nil, err
	}
	for _, field := range schema.Fields {
		if !identifier.MatchString(field.Name) {
			return nil, fmt.Errorf("%w: column %q", knode.ErrInvalidSchema, field.Name)
		}
	}
	return &Sink{
		dsn:     f.dsn,
		table:   f.table,
		schema:  schema,
		queries: buildQueries(f.table, schema),
	}, nil
}

type queries struct {
	create string
	upsert string
	delete string
}

func columnType(t knode.FieldType) string {
	switch t {
	case knode.FieldTypeInt, knode.FieldTypeUInt, knode.FieldTypeBoolean:
		return "INTEGER"
	case knode.FieldTypeFloat:
		return "REAL"
	case knode.FieldTypeString:
		return "TEXT"
	case knode.FieldTypeBinary:
		return "BLOB"
	case knode.FieldTypeTimestamp:
		return "TIMESTAMP"
	default:
		return "BLOB"
	}
}

func quote(name string) string {
	return `"` + name + `"`
}

func buildQueries(table string, schema knode.Schema) queries {
	var cols, defs, marks []string
	for _, field := range schema.Fields {
		def := fmt.Sprintf("%s %s", quote(field.Name), columnType(field.Type))
		if !field.Nullable {
			def += " NOT NULL"
		}
		cols = append(cols, quote(field.Name))
		defs = append(defs, def)
		marks = append(marks, "?")
	}

	keyCols := cols
	if len(schema.PrimaryIndex) > 0 {
		keyCols = make([]string, len(schema.PrimaryIndex))
		for i, idx := range schema.PrimaryIndex {
			keyCols[i] = cols[idx]
		}
	}
	defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(keyCols, ", ")))

	where := make([]string, len(keyCols))
	for i, c := range keyCols {
		where[i] = c + " = ?"
	}

	return queries{
		create: fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(table), strings.Join(defs, ", ")),
		upsert: fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)", quote(table), strings.Join(cols, ", "), strings.Join(marks, ", ")),
		delete: fmt.Sprintf("DELETE FROM %s WHERE %s", quote(table), strings.Join(where, " AND ")),
	}
}

// Sink is the runtime instance built by Factory.
type Sink struct {
	dsn     string
	table   string
	schema  knode.Schema
	queries queries

	db *sqlx.DB
	tx *sqlx.Tx
}

func (s *Sink) Init(kstate.Transaction) error {
	db, err := sqlx.Open("sqlite3", s.dsn)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.dsn, err)
	}
	// The sink holds at most one transaction.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("connect %s: %w", s.dsn, err)
	}
	if _, err := db.Exec(s.queries.create); err != nil {
		_ = db.Close()
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	s.db = db
	return s.begin()
}

func (s *Sink) begin() error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	s.tx = tx
	return nil
}

func (s *Sink) Process(ctx context.Context, _ knode.PortHandle, op knode.Operation, _ kstate.Transaction, _ map[knode.PortHandle]knode.RecordReader) error {
	switch op.Kind {
	case knode.OperationInsert:
		return s.upsert(ctx, op.New)
	case knode.OperationUpdate:
		oldKey, err := op.Old.Key(s.schema)
		if err != nil {
			return err
		}
		newKey, err := op.New.Key(s.schema)
		if err != nil {
			return err
		}
		if string(oldKey) != string(newKey) {
			if err := s.delete(ctx, op.Old); err != nil {
				return err
			}
		}
		return s.upsert(ctx, op.New)
	case knode.OperationDelete:
		return s.delete(ctx, op.Old)
	default:
		return fmt.Errorf("unknown operation kind %d", op.Kind)
	}
}

func (s *Sink) upsert(ctx context.Context, r knode.Record) error {
	if len(r.Values) != len(s.schema.Fields) {
		return fmt.Errorf("%w: %d values for %d columns", knode.ErrInvalidRecord, len(r.Values), len(s.schema.Fields))
	}
	_, err := s.tx.ExecContext(ctx, s.queries.upsert, r.Values...)
	return err
}

func (s *Sink) delete(ctx context.Context, r knode.Record) error {
	key, err := r.KeyValues(s.schema)
	if err != nil {
		return err
	}
	_, err = s.tx.ExecContext(ctx, s.queries.delete, key...)
	return err
}

func (s *Sink) Commit(kstate.Transaction) error {
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return s.begin()
}

// Close rolls back statements issued since the last commit.
func (s *Sink) Close() error {
	if s.db == nil {
		return nil
	}
	if s.tx != nil {
		_ = s.tx.Rollback()
	}
	return s.db.Close()
}

var (
	_ knode.SinkFactory = (*Factory)(nil)
	_ knode.Sink        = (*Sink)(nil)
)
