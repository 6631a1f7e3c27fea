package planner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chatidea/chatidea/internal/schema"
)

type Dialect struct {
	Name string
	// Placeholder renders the n-th (1-based) parameter marker.
	Placeholder func(n int) string
	Quote       func(identifier string) string
	Like        string
	// FetchLimit marks dialects that express LIMIT as OFFSET/FETCH and
	// therefore need an ORDER BY clause.
	FetchLimit bool
}

var (
	Postgres = Dialect{
		Name:        "postgres",
		Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
		Quote:       doubleQuote,
		Like:        "ILIKE",
	}
	DuckDB = Dialect{
		Name:        "duckdb",
		Placeholder: func(int) string { return "?" },
		Quote:       doubleQuote,
		Like:        "ILIKE",
	}
	MySQL = Dialect{
		Name:        "mysql",
		Placeholder: func(int) string { return "?" },
		Quote:       func(identifier string) string { return "`" + strings.ReplaceAll(identifier, "`", "``") + "`" },
		Like:        "LIKE",
	}
	MSSQL = Dialect{
		Name:        "mssql",
		Placeholder: func(n int) string { return "@p" + strconv.Itoa(n) },
		Quote:       func(identifier string) string { return "[" + strings.ReplaceAll(identifier, "]", "]]") + "]" },
		Like:        "LIKE",
		FetchLimit:  true,
	}
)

func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "duckdb":
		return DuckDB, nil
	case "mysql":
		return MySQL, nil
	case "mssql", "sqlserver":
		return MSSQL, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported dialect %q", name)
	}
}

func doubleQuote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

type renderer struct {
	dialect Dialect
	labels  map[string]string
	args    []any
}

// Render produces the SQL text and its positional arguments.
func (p Plan) Render(dialect Dialect) (string, []any) {
	r := &renderer{dialect: dialect, labels: p.Labels, args: make([]any, 0)}
	var b strings.Builder

	b.WriteString("SELECT ")
	if p.Distinct {
		b.WriteString("DISTINCT ")
	}
	selected := make([]string, 0, len(p.Columns))
	for _, column := range p.Columns {
		selected = append(selected, r.columnExpr(column)+" AS "+dialect.Quote(column.Key))
	}
	b.WriteString(strings.Join(selected, ", "))

	b.WriteString(" FROM ")
	b.WriteString(r.table(p.Base))
	for i := 0; i < len(p.Joins); {
		j := i
		kind := JoinLeft
		conditions := make([]string, 0)
		for ; j < len(p.Joins) && p.Joins[j].Target == p.Joins[i].Target; j++ {
			if p.Joins[j].Kind == JoinInner {
				kind = JoinInner
			}
			for _, equality := range p.Joins[j].On {
				conditions = append(conditions, r.field(p.Joins[j].Origin, equality.OriginColumn)+" = "+r.field(p.Joins[j].Target, equality.TargetColumn))
			}
		}
		b.WriteString(" ")
		b.WriteString(string(kind))
		b.WriteString(" JOIN ")
		b.WriteString(r.table(p.Joins[i].Target))
		b.WriteString(" ON ")
		b.WriteString(strings.Join(conditions, " AND "))
		i = j
	}

	if !p.Where.Empty() {
		b.WriteString(" WHERE ")
		b.WriteString(r.criterion(p.Where))
	}

	if len(p.GroupBy) > 0 {
		grouped := make([]string, 0, len(p.GroupBy))
		for _, column := range p.GroupBy {
			grouped = append(grouped, r.columnExpr(column))
		}
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(grouped, ", "))
	}

	orderBy := make([]string, 0, len(p.OrderBy))
	for _, term := range p.OrderBy {
		expr := "COUNT(*)"
		if !term.Count {
			expr = r.field(term.Table, term.Column)
		}
		if term.Descending {
			expr += " DESC"
		}
		orderBy = append(orderBy, expr)
	}
	if len(orderBy) == 0 && p.Limit > 0 && dialect.FetchLimit {
		for _, column := range p.Columns {
			orderBy = append(orderBy, r.columnExpr(column))
		}
	}
	if len(orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(orderBy, ", "))
	}

	if p.Limit > 0 {
		if dialect.FetchLimit {
			fmt.Fprintf(&b, " OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", p.Limit)
		} else {
			fmt.Fprintf(&b, " LIMIT %d", p.Limit)
		}
	}
	return b.String(), r.args
}

func (r *renderer) table(name string) string {
	out := r.dialect.Quote(name)
	if alias, ok := r.labels[name]; ok {
		out += " AS " + alias
	}
	return out
}

func (r *renderer) field(table, column string) string {
	prefix := r.dialect.Quote(table)
	if alias, ok := r.labels[table]; ok {
		prefix = alias
	}
	return prefix + "." + r.dialect.Quote(column)
}

func (r *renderer) columnExpr(column Column) string {
	if column.Count {
		return "COUNT(*)"
	}
	return r.field(column.Table, column.Name)
}

func (r *renderer) criterion(c Criterion) string {
	if c.Predicate != nil {
		return r.predicate(*c.Predicate)
	}
	parts := make([]string, 0, len(c.Children))
	for _, child := range c.Children {
		rendered := r.criterion(child)
		if child.Predicate == nil && len(child.Children) > 1 {
			rendered = "(" + rendered + ")"
		}
		parts = append(parts, rendered)
	}
	return strings.Join(parts, " "+string(c.Combinator)+" ")
}

func (r *renderer) predicate(p Predicate) string {
	r.args = append(r.args, p.Value)
	operator := string(p.Operator)
	if p.Operator == schema.OpLike {
		operator = r.dialect.Like
	}
	return r.field(p.Table, p.Column) + " " + operator + " " + r.dialect.Placeholder(len(r.args))
}
