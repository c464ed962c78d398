package store

import (
	"context"
	"fmt"

	"cinequery"
)

// columnInfoQuery lists the name and declared type of every column of
// the target table.
const columnInfoQuery = `
WITH column_info AS (
    SELECT
        name AS column_name,
        type AS data_type
    FROM
        pragma_table_info('%s')
)
SELECT
    column_info.column_name,
    column_info.data_type
FROM
    column_info;
`

// sampleRowsQuery pulls a small fixed-size sample of rows.
const sampleRowsQuery = `SELECT * FROM %s LIMIT %d`

// defaultSampleSize is the number of example rows fed to the describer.
const defaultSampleSize = 5

// Introspector discovers the structure of one table: column metadata
// plus a column-aligned sample of values.
type Introspector struct {
	store      *Store
	table      string
	sampleSize int
}

// NewIntrospector creates an introspector for the given store and table.
func NewIntrospector(store *Store, table string) *Introspector {
	return &Introspector{
		store:      store,
		table:      table,
		sampleSize: defaultSampleSize,
	}
}

// Introspect runs the two fixed discovery queries and zips them into a
// per-column profile. Column metadata failures are fatal (there is
// nothing to describe); a sample failure flows through as the sole
// example value so the describer still sees it.
func (i *Introspector) Introspect(ctx context.Context) (cinequery.SchemaProfile, error) {
	columns, err := i.store.Query(ctx, fmt.Sprintf(columnInfoQuery, i.table))
	if err != nil {
		return nil, fmt.Errorf("column discovery: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table '%s' has no columns", i.table)
	}

	profile := make(cinequery.SchemaProfile, 0, len(columns))
	for _, col := range columns {
		cp := cinequery.ColumnProfile{Name: col[0]}
		if len(col) > 1 {
			cp.Type = col[1]
		}
		profile = append(profile, cp)
	}

	samples, err := i.store.Query(ctx, fmt.Sprintf(sampleRowsQuery, i.table, i.sampleSize))
	if err != nil {
		// Error result flows through unchanged and reaches the
		// reasoning engine as-is.
		errText := fmt.Sprintf("Error occurred during sql execution: %v", err)
		for ci := range profile {
			profile[ci].Examples = []string{errText}
		}
		return profile, nil
	}

	for _, row := range samples {
		for ci := range profile {
			if ci < len(row) {
				profile[ci].Examples = append(profile[ci].Examples, row[ci])
			}
		}
	}

	return profile, nil
}

// Fingerprint identifies the store/table pair, used as the narrative
// cache key.
func (i *Introspector) Fingerprint() string {
	return fmt.Sprintf("sqlite:%s:%s", i.store.Path(), i.table)
}
