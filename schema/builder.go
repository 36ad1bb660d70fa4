// Package schema collects the persistence entities that modules register
// during ConfigureSchema and renders them as SQL DDL.
//
// Entities are grouped the way modules own them: each module receives a
// builder scoped to its own ID, so the host can later report which module
// owns which table.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Static errors for schema building
var (
	ErrEntityExists     = errors.New("entity already registered")
	ErrEntityNameEmpty  = errors.New("entity name is empty")
	ErrNoColumns        = errors.New("entity declares no columns")
	ErrUnknownColumn    = errors.New("column not declared on entity")
	ErrDuplicateColumn  = errors.New("column declared twice")
	ErrDatabaseRequired = errors.New("database handle is nil")
)

// Column describes one column of an entity table.
type Column struct {
	Name    string
	Type    string
	NotNull bool
	Unique  bool
	Default string
}

// ForeignKey links a column to a column of another table.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// Index is a (possibly unique) index over one or more columns.
type Index struct {
	Columns []string
	Unique  bool
}

// Entity is the registered description of one persisted type.
type Entity struct {
	Name        string
	Table       string
	Group       string
	Owner       string
	Columns     []Column
	Key         []string
	Indexes     []Index
	ForeignKeys []ForeignKey
}

// QualifiedTable returns the table name including its group. SQLite has no
// schemas, so groups are rendered as a "group_table" prefix.
func (e Entity) QualifiedTable() string {
	table := e.Table
	if table == "" {
		table = e.Name
	}
	if e.Group == "" {
		return table
	}
	return e.Group + "_" + table
}

type store struct {
	mu       sync.Mutex
	entities []*Entity
	byName   map[string]*Entity
}

// Builder registers entities. The zero value is not usable; call NewBuilder.
type Builder struct {
	store *store
	owner string
}

// NewBuilder creates an empty schema builder.
func NewBuilder() *Builder {
	return &Builder{store: &store{byName: make(map[string]*Entity)}}
}

// Owner returns a builder that shares storage with b and stamps every
// entity it registers with moduleID.
func (b *Builder) Owner(moduleID string) *Builder {
	return &Builder{store: b.store, owner: moduleID}
}

// Entity registers a new entity and lets configure describe it.
func (b *Builder) Entity(name string, configure func(e *EntityBuilder)) error {
	if strings.TrimSpace(name) == "" {
		return ErrEntityNameEmpty
	}

	eb := &EntityBuilder{entity: &Entity{Name: name, Table: name, Owner: b.owner}}
	if configure != nil {
		configure(eb)
	}
	if eb.err != nil {
		return fmt.Errorf("entity %s: %w", name, eb.err)
	}
	if len(eb.entity.Columns) == 0 {
		return fmt.Errorf("entity %s: %w", name, ErrNoColumns)
	}
	if err := eb.entity.verify(); err != nil {
		return fmt.Errorf("entity %s: %w", name, err)
	}

	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	if existing, ok := b.store.byName[name]; ok {
		return fmt.Errorf("%w: %s (owned by %s)", ErrEntityExists, name, existing.Owner)
	}
	b.store.byName[name] = eb.entity
	b.store.entities = append(b.store.entities, eb.entity)
	return nil
}

// Entities returns copies of all registered entities in registration order.
func (b *Builder) Entities() []Entity {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	out := make([]Entity, 0, len(b.store.entities))
	for _, e := range b.store.entities {
		out = append(out, *e)
	}
	return out
}

// OwnedBy returns the entities registered by moduleID.
func (b *Builder) OwnedBy(moduleID string) []Entity {
	var out []Entity
	for _, e := range b.Entities() {
		if e.Owner == moduleID {
			out = append(out, e)
		}
	}
	return out
}

// RemoveOwner drops every entity registered by moduleID and returns how many
// were removed.
func (b *Builder) RemoveOwner(moduleID string) int {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	kept := b.store.entities[:0]
	removed := 0
	for _, e := range b.store.entities {
		if e.Owner == moduleID {
			delete(b.store.byName, e.Name)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	b.store.entities = kept
	return removed
}

// Len returns the number of registered entities.
func (b *Builder) Len() int {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	return len(b.store.entities)
}

// Statements renders CREATE TABLE and CREATE INDEX statements. Tables that
// are referenced by foreign keys are created before the tables that
// reference them; otherwise registration order is kept.
func (b *Builder) Statements() []string {
	return b.statements(func(Entity) bool { return true })
}

// StatementsFor renders the statements of the entities owned by moduleID.
// Foreign keys still resolve against every registered entity.
func (b *Builder) StatementsFor(moduleID string) []string {
	return b.statements(func(e Entity) bool { return e.Owner == moduleID })
}

func (b *Builder) statements(keep func(Entity) bool) []string {
	all := b.Entities()
	tables := newTableResolver(all)

	var stmts []string
	for _, e := range orderByReferences(all, tables) {
		if !keep(e) {
			continue
		}
		stmts = append(stmts, e.createTable(tables))
		for _, idx := range e.Indexes {
			stmts = append(stmts, e.createIndex(idx))
		}
	}
	return stmts
}

// Apply executes all statements against db in a single transaction.
func (b *Builder) Apply(ctx context.Context, db *sql.DB) error {
	return apply(ctx, db, b.Statements())
}

// ApplyOwner executes the statements of the entities owned by moduleID in
// their own transaction, so one module's broken DDL leaves the others intact.
func (b *Builder) ApplyOwner(ctx context.Context, db *sql.DB, moduleID string) error {
	return apply(ctx, db, b.StatementsFor(moduleID))
}

func apply(ctx context.Context, db *sql.DB, stmts []string) error {
	if db == nil {
		return ErrDatabaseRequired
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply schema statement %q: %w", stmt, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}

func (e *Entity) verify() error {
	seen := make(map[string]bool, len(e.Columns))
	for _, c := range e.Columns {
		if seen[c.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateColumn, c.Name)
		}
		seen[c.Name] = true
	}

	check := func(cols ...string) error {
		for _, c := range cols {
			if !seen[c] {
				return fmt.Errorf("%w: %s", ErrUnknownColumn, c)
			}
		}
		return nil
	}

	if err := check(e.Key...); err != nil {
		return err
	}
	for _, idx := range e.Indexes {
		if err := check(idx.Columns...); err != nil {
			return err
		}
	}
	for _, fk := range e.ForeignKeys {
		if err := check(fk.Column); err != nil {
			return err
		}
	}
	return nil
}

func (e Entity) createTable(tables tableResolver) string {
	var defs []string
	for _, c := range e.Columns {
		def := quote(c.Name) + " " + c.Type
		if c.NotNull {
			def += " NOT NULL"
		}
		if c.Unique {
			def += " UNIQUE"
		}
		if c.Default != "" {
			def += " DEFAULT " + c.Default
		}
		defs = append(defs, def)
	}
	if len(e.Key) > 0 {
		defs = append(defs, "PRIMARY KEY ("+quoteList(e.Key)+")")
	}
	for _, fk := range e.ForeignKeys {
		defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			quote(fk.Column), quote(tables.resolve(fk.RefTable)), quote(fk.RefColumn)))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(e.QualifiedTable()), strings.Join(defs, ", "))
}

func (e Entity) createIndex(idx Index) string {
	kind := "INDEX"
	prefix := "ix"
	if idx.Unique {
		kind = "UNIQUE INDEX"
		prefix = "ux"
	}
	table := e.QualifiedTable()
	name := prefix + "_" + table + "_" + strings.Join(idx.Columns, "_")
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)", kind, quote(name), quote(table), quoteList(idx.Columns))
}

// tableResolver maps the names a foreign key may use for a table to its
// qualified name: the qualified name itself, the entity name, or the bare
// table name. When several entities share a bare table name the first
// registered one wins.
type tableResolver map[string]string

func newTableResolver(entities []Entity) tableResolver {
	r := make(tableResolver, len(entities)*3)
	for _, e := range entities {
		if _, ok := r[e.Table]; !ok && e.Table != "" {
			r[e.Table] = e.QualifiedTable()
		}
	}
	for _, e := range entities {
		r[e.Name] = e.QualifiedTable()
	}
	for _, e := range entities {
		r[e.QualifiedTable()] = e.QualifiedTable()
	}
	return r
}

func (r tableResolver) resolve(ref string) string {
	if table, ok := r[ref]; ok {
		return table
	}
	return ref
}

// orderByReferences is a stable topological sort on foreign-key references.
// Entities caught in a reference cycle keep their registration order.
func orderByReferences(entities []Entity, tables tableResolver) []Entity {
	byTable := make(map[string]int, len(entities))
	for i, e := range entities {
		byTable[e.QualifiedTable()] = i
	}

	placed := make([]bool, len(entities))
	out := make([]Entity, 0, len(entities))

	for len(out) < len(entities) {
		progressed := false
		for i, e := range entities {
			if placed[i] {
				continue
			}
			ready := true
			for _, fk := range e.ForeignKeys {
				j, ok := byTable[tables.resolve(fk.RefTable)]
				if ok && j != i && !placed[j] {
					ready = false
					break
				}
			}
			if ready {
				placed[i] = true
				out = append(out, e)
				progressed = true
			}
		}
		if !progressed {
			for i, e := range entities {
				if !placed[i] {
					placed[i] = true
					out = append(out, e)
				}
			}
		}
	}
	return out
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func quoteList(idents []string) string {
	quoted := make([]string, len(idents))
	for i, id := range idents {
		quoted[i] = quote(id)
	}
	return strings.Join(quoted, ", ")
}
