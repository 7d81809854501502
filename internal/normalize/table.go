package normalize

// Record is one data row of an export keyed by source header.
type Record struct {
	// Line is the 1-based row number in the source file, header included.
	Line   int
	Values map[string]string
}

// Table is a raw tabular export as read from CSV, XLSX or the API flattener.
type Table struct {
	Headers []string
	Records []Record
}

// NewTable builds a table from a header row and positional rows. Data rows
// are numbered from 2 because the header occupies the first line.
func NewTable(headers []string, rows [][]string) Table {
	table := Table{Headers: append([]string(nil), headers...)}
	for i, row := range rows {
		values := make(map[string]string, len(headers))
		for col, header := range headers {
			if col < len(row) {
				values[header] = row[col]
			} else {
				values[header] = ""
			}
		}
		table.Records = append(table.Records, Record{Line: i + 2, Values: values})
	}
	return table
}
