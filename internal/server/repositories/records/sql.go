package records

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/datakeeper/internal/dbx"
	"github.com/dmitrijs2005/datakeeper/internal/server/catalog"
	"github.com/dmitrijs2005/datakeeper/internal/server/models"
)

// SQLRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type SQLRepository struct {
	db      dbx.DBTX
	dialect dbx.Dialect
}

// NewSQLRepository constructs a repository bound to the given DBTX.
func NewSQLRepository(db dbx.DBTX, dialect dbx.Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect}
}

// updateSQL builds an UPDATE of the non-key columns present in row. ok is
// false when the row carries keys only.
func (r *SQLRepository) updateSQL(d *catalog.SchemaDescriptor, row models.Row) (query string, args []any, ok bool) {
	q := r.dialect.Quote

	var sets []string
	for _, c := range d.Columns {
		v, present := row[c.Name]
		if !present || d.IsKey(c.Name) {
			continue
		}
		sets = append(sets, q(c.Name)+" = ?")
		args = append(args, v)
	}
	if len(sets) == 0 {
		return "", nil, false
	}

	where, keyArgs := r.keyWhere(d, row)
	args = append(args, keyArgs...)
	query = fmt.Sprintf("UPDATE %s SET %s WHERE %s", q(d.Target), strings.Join(sets, ", "), where)
	return r.dialect.Bind(query), args, true
}

// insertSQL builds an INSERT of the columns present in row, in descriptor
// order. The conflict clause covers a concurrent insert of the same key.
func (r *SQLRepository) insertSQL(d *catalog.SchemaDescriptor, row models.Row) (string, []any) {
	q := r.dialect.Quote

	cols := make([]string, 0, len(row))
	marks := make([]string, 0, len(row))
	args := make([]any, 0, len(row))
	var sets []string
	for _, c := range d.Columns {
		v, ok := row[c.Name]
		if !ok {
			continue
		}
		cols = append(cols, q(c.Name))
		marks = append(marks, "?")
		args = append(args, v)
		if !d.IsKey(c.Name) {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", q(c.Name), q(c.Name)))
		}
	}

	keys := make([]string, len(d.Keys))
	for i, k := range d.Keys {
		keys[i] = q(k)
	}
	if len(sets) == 0 {
		// keys only: touch the row so the conflict still counts as an update
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", keys[0], keys[0]))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		q(d.Target),
		strings.Join(cols, ", "),
		strings.Join(marks, ", "),
		strings.Join(keys, ", "),
		strings.Join(sets, ", "),
	)
	if r.dialect.IsPostgres() {
		query += " RETURNING (xmax = 0) AS inserted"
	}
	return r.dialect.Bind(query), args
}

func (r *SQLRepository) keyWhere(d *catalog.SchemaDescriptor, row models.Row) (string, []any) {
	conds := make([]string, len(d.Keys))
	args := make([]any, len(d.Keys))
	for i, k := range d.Keys {
		conds[i] = r.dialect.Quote(k) + " = ?"
		args[i] = row[k]
	}
	return strings.Join(conds, " AND "), args
}

// Upsert updates the present columns of an existing row first, so columns
// absent from row keep their stored values and NOT NULL columns need not be
// resent. Only when no row matched is an INSERT issued.
func (r *SQLRepository) Upsert(ctx context.Context, d *catalog.SchemaDescriptor, row models.Row) (bool, error) {
	if query, args, ok := r.updateSQL(d, row); ok {
		res, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return false, fmt.Errorf("db error: %w", dbx.Classify(err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("rows affected error: %w", err)
		}
		if n > 0 {
			return false, nil
		}
	} else {
		exists, err := r.exists(ctx, d, row)
		if err != nil {
			return false, err
		}
		if exists {
			return false, nil
		}
	}

	query, args := r.insertSQL(d, row)

	if r.dialect.IsPostgres() {
		var inserted bool
		if err := r.db.QueryRowContext(ctx, query, args...).Scan(&inserted); err != nil {
			return false, fmt.Errorf("db error: %w", dbx.Classify(err))
		}
		return inserted, nil
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return false, fmt.Errorf("unexpected rows affected: %d", n)
	}
	// sqlite serializes writers, so nothing can have slipped in since the update
	return true, nil
}

func (r *SQLRepository) exists(ctx context.Context, d *catalog.SchemaDescriptor, row models.Row) (bool, error) {
	where, args := r.keyWhere(d, row)
	query := r.dialect.Bind(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", r.dialect.Quote(d.Target), where))

	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return n > 0, nil
}

// selectSQL builds the read statement. Equality terms are emitted in column
// name order so the statement text is stable.
func (r *SQLRepository) selectSQL(d *catalog.SchemaDescriptor, filter models.Filter) (string, []any) {
	q := r.dialect.Quote

	cols := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		cols[i] = q(c.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(cols, ", "), q(d.Target))

	names := make([]string, 0, len(filter.Equals))
	for name := range filter.Equals {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]any, 0, len(names))
	for i, name := range names {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		v := filter.Equals[name]
		if v == nil {
			fmt.Fprintf(&b, "%s IS NULL", q(name))
			continue
		}
		fmt.Fprintf(&b, "%s = ?", q(name))
		args = append(args, v)
	}

	order := filter.OrderBy
	if len(order) == 0 {
		order = d.DefaultSort
	}
	for i, s := range order {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(q(s.Column))
		if s.Desc {
			b.WriteString(" DESC")
		}
	}

	if filter.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(filter.Limit))
	}

	return r.dialect.Bind(b.String()), args
}

func (r *SQLRepository) Select(ctx context.Context, d *catalog.SchemaDescriptor, filter models.Filter) iter.Seq2[models.Row, error] {
	return func(yield func(models.Row, error) bool) {
		query, args := r.selectSQL(d, filter)

		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(nil, fmt.Errorf("db error: %w", dbx.Classify(err)))
			return
		}
		defer rows.Close()

		for rows.Next() {
			vals := make([]any, len(d.Columns))
			ptrs := make([]any, len(d.Columns))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				yield(nil, fmt.Errorf("scan error: %w", dbx.Classify(err)))
				return
			}

			row := make(models.Row, len(d.Columns))
			for i, c := range d.Columns {
				row[c.Name] = c.Type.FromStore(vals[i])
			}
			if !yield(row, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("db error: %w", dbx.Classify(err)))
		}
	}
}
