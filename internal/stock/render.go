package stock

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/aardg/massabalans/internal/orderline"
	"github.com/aardg/massabalans/internal/sheetsreport"
)

// Section is one titled table of the overview.
type Section struct {
	Title     string
	Worksheet string
	Entries   []Entry
}

// Sections returns the overview in presentation order.
func (ov Overview) Sections() []Section {
	return []Section{
		{Title: "Begin Voorraad: " + ov.Period.Start.Format(orderline.DateLayout), Worksheet: "Begin Voorraad", Entries: ov.Start},
		{Title: "Mutatie", Worksheet: "Mutatie", Entries: ov.Mutation},
		{Title: "Eind Voorraad: " + ov.Period.End.Format(orderline.DateLayout), Worksheet: "Eind Voorraad", Entries: ov.End},
	}
}

// Render writes the overview as three aligned text tables.
func Render(w io.Writer, ov Overview) error {
	for i, section := range ov.Sections() {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s\n\n", section.Title); err != nil {
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "Product\tBatch\tAantal")
		for _, e := range section.Entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Product, e.Batch, e.Quantity.String())
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// WriteSheets writes each section to its own worksheet. The period date is
// carried in the quantity header because the worksheet names stay fixed.
func WriteSheets(ctx context.Context, w sheetsreport.SheetWriter, ov Overview) error {
	for _, section := range ov.Sections() {
		header := []any{"Product", "Batch", section.Title}
		rows := make([][]any, 0, len(section.Entries))
		for _, e := range section.Entries {
			rows = append(rows, []any{e.Product, e.Batch, e.Quantity.InexactFloat64()})
		}
		if _, err := sheetsreport.WriteWorksheet(ctx, w, section.Worksheet, header, rows); err != nil {
			return err
		}
	}
	return nil
}
