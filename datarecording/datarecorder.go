// Package datarecording stores dispatch traces and other wallet diagnostics
// in a SQLite database.
package datarecording

import (
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"strings"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// DataRecorder is a backend that can record and store data
type DataRecorder interface {
	// CreateTable creates a new table whose columns match the exported
	// fields of sampleEntry
	CreateTable(tableName string, sampleEntry any)

	// InsertData buffers one entry for a table that already exists
	InsertData(tableName string, entry any)

	// ListTables returns a slice containing names of all tables
	ListTables() []string

	// Flush writes all the buffered entries into the database
	Flush()
}

// NewSQLiteWriter creates a DataRecorder backed by a SQLite file at path
// (without the .sqlite3 suffix). An empty path picks a unique name.
func NewSQLiteWriter(path string) *SQLiteWriter {
	w := &SQLiteWriter{
		dbName:    path,
		batchSize: 100000,
		tables:    make(map[string]*table),
	}

	w.Init()

	atexit.Register(func() { w.Flush() })

	return w
}

type table struct {
	structType reflect.Type
	entries    []any
}

// SQLiteWriter is the DataRecorder that writes into a SQLite database.
type SQLiteWriter struct {
	*sql.DB

	dbName     string
	tables     map[string]*table
	batchSize  int
	entryCount int
}

// Init establishes a connection to the database.
func (w *SQLiteWriter) Init() {
	if w.dbName == "" {
		w.dbName = "eventcore_data_recording_" + xid.New().String()
	}

	filename := w.dbName + ".sqlite3"

	_, err := os.Stat(filename)
	if err == nil {
		panic(fmt.Errorf("file %s already exists", filename))
	}

	fmt.Fprintf(os.Stderr, "Database created for recording: %s\n", filename)

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	w.DB = db
}

// CreateTable creates a table whose columns are the exported fields of
// sampleEntry, which must be a struct of bools, integers, floats, or strings.
func (w *SQLiteWriter) CreateTable(tableName string, sampleEntry any) {
	structType := reflect.TypeOf(sampleEntry)
	if structType.Kind() != reflect.Struct {
		panic("sample entry must be a struct")
	}

	columns := make([]string, 0, structType.NumField())
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if !field.IsExported() {
			continue
		}

		columns = append(columns,
			field.Name+" "+sqliteType(field.Type.Kind()))
	}

	stmt := fmt.Sprintf("CREATE TABLE %s (%s);",
		tableName, strings.Join(columns, ", "))
	_, err := w.Exec(stmt)
	if err != nil {
		panic(err)
	}

	w.tables[tableName] = &table{structType: structType}
}

func sqliteType(kind reflect.Kind) string {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16,
		reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16,
		reflect.Uint32, reflect.Uint64:
		return "INTEGER"
	case reflect.Float32, reflect.Float64:
		return "REAL"
	case reflect.String:
		return "TEXT"
	default:
		panic(fmt.Errorf("field kind %s is not supported", kind))
	}
}

// InsertData buffers one entry. Entries are written out once the batch size
// is reached or Flush is called.
func (w *SQLiteWriter) InsertData(tableName string, entry any) {
	t, ok := w.tables[tableName]
	if !ok {
		panic(fmt.Errorf("table %s does not exist", tableName))
	}

	if reflect.TypeOf(entry) != t.structType {
		panic(fmt.Errorf("entry type does not match table %s", tableName))
	}

	t.entries = append(t.entries, entry)
	w.entryCount++

	if w.entryCount >= w.batchSize {
		w.Flush()
	}
}

// ListTables returns the names of all created tables.
func (w *SQLiteWriter) ListTables() []string {
	names := make([]string, 0, len(w.tables))
	for name := range w.tables {
		names = append(names, name)
	}
	return names
}

// Flush writes all the buffered entries into the database in one
// transaction.
func (w *SQLiteWriter) Flush() {
	tx, err := w.Begin()
	if err != nil {
		panic(err)
	}

	for name, t := range w.tables {
		if len(t.entries) == 0 {
			continue
		}

		stmt := insertStatement(name, t.structType)
		prepared, err := tx.Prepare(stmt)
		if err != nil {
			panic(err)
		}

		for _, entry := range t.entries {
			_, err := prepared.Exec(fieldValues(entry)...)
			if err != nil {
				panic(err)
			}
		}

		t.entries = nil
	}

	err = tx.Commit()
	if err != nil {
		panic(err)
	}

	w.entryCount = 0
}

func insertStatement(tableName string, structType reflect.Type) string {
	columns := make([]string, 0, structType.NumField())
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if !field.IsExported() {
			continue
		}
		columns = append(columns, field.Name)
	}

	placeholders := strings.TrimSuffix(
		strings.Repeat("?, ", len(columns)), ", ")

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);",
		tableName, strings.Join(columns, ", "), placeholders)
}

func fieldValues(entry any) []any {
	value := reflect.ValueOf(entry)
	values := make([]any, 0, value.NumField())
	for i := 0; i < value.NumField(); i++ {
		if !value.Type().Field(i).IsExported() {
			continue
		}
		values = append(values, value.Field(i).Interface())
	}
	return values
}
