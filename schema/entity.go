package schema

import "fmt"

// EntityBuilder describes one entity inside Builder.Entity.
type EntityBuilder struct {
	entity *Entity
	err    error
}

// ColumnOption adjusts a column declaration.
type ColumnOption func(c *Column)

// NotNull marks the column NOT NULL.
func NotNull() ColumnOption {
	return func(c *Column) { c.NotNull = true }
}

// Unique marks the column UNIQUE.
func Unique() ColumnOption {
	return func(c *Column) { c.Unique = true }
}

// Default sets a literal SQL default expression, e.g. Default("0") or
// Default("CURRENT_TIMESTAMP").
func Default(expr string) ColumnOption {
	return func(c *Column) { c.Default = expr }
}

// Table sets the table name and the group (schema) it belongs to.
func (b *EntityBuilder) Table(name, group string) *EntityBuilder {
	if name != "" {
		b.entity.Table = name
	}
	b.entity.Group = group
	return b
}

// Column declares a column of the given SQL type.
func (b *EntityBuilder) Column(name, sqlType string, opts ...ColumnOption) *EntityBuilder {
	if name == "" || sqlType == "" {
		b.fail(fmt.Errorf("column name and type are required (got %q %q)", name, sqlType))
		return b
	}
	c := Column{Name: name, Type: sqlType}
	for _, opt := range opts {
		opt(&c)
	}
	b.entity.Columns = append(b.entity.Columns, c)
	return b
}

// Key sets the primary key columns.
func (b *EntityBuilder) Key(columns ...string) *EntityBuilder {
	b.entity.Key = append([]string(nil), columns...)
	return b
}

// Index adds a non-unique index.
func (b *EntityBuilder) Index(columns ...string) *EntityBuilder {
	return b.addIndex(false, columns)
}

// UniqueIndex adds a unique index.
func (b *EntityBuilder) UniqueIndex(columns ...string) *EntityBuilder {
	return b.addIndex(true, columns)
}

// ForeignKey declares that column references refTable(refColumn). refTable
// may name the referenced entity, its table, or its qualified "group_table"
// form; it is rendered as the qualified table. Names matching no registered
// entity are used as given.
func (b *EntityBuilder) ForeignKey(column, refTable, refColumn string) *EntityBuilder {
	b.entity.ForeignKeys = append(b.entity.ForeignKeys, ForeignKey{
		Column:    column,
		RefTable:  refTable,
		RefColumn: refColumn,
	})
	return b
}

func (b *EntityBuilder) addIndex(unique bool, columns []string) *EntityBuilder {
	if len(columns) == 0 {
		b.fail(fmt.Errorf("index on %s declares no columns", b.entity.Name))
		return b
	}
	b.entity.Indexes = append(b.entity.Indexes, Index{Columns: append([]string(nil), columns...), Unique: unique})
	return b
}

func (b *EntityBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}
