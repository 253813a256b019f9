// Package records executes upserts and reads against descriptor-defined
// target tables. SQL is assembled from validated catalog identifiers only;
// every value travels as a bind argument.
package records

import (
	"context"
	"iter"

	"github.com/dmitrijs2005/datakeeper/internal/server/catalog"
	"github.com/dmitrijs2005/datakeeper/internal/server/models"
)

type Repository interface {
	// Upsert inserts row or updates the columns it carries. The row must be
	// validated and coerced already. It reports whether a new row was created.
	Upsert(ctx context.Context, d *catalog.SchemaDescriptor, row models.Row) (inserted bool, err error)
	// Select streams the rows matching filter. Filter values must be coerced.
	Select(ctx context.Context, d *catalog.SchemaDescriptor, filter models.Filter) iter.Seq2[models.Row, error]
}
