package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// renderTable draws a rounded table with headers kept as written. Columns listed in counts are right aligned.
func renderTable(headers []string, rows [][]string, counts ...int) string {
	if len(headers) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault

	tw.AppendHeader(toRow(headers))
	for _, row := range rows {
		padded := make([]string, len(headers))
		copy(padded, row)
		tw.AppendRow(toRow(padded))
	}

	configs := make([]table.ColumnConfig, 0, len(counts))
	for _, col := range counts {
		configs = append(configs, table.ColumnConfig{Number: col + 1, Align: text.AlignRight})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func toRow(cells []string) table.Row {
	row := make(table.Row, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}
