package access

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/jung-kurt/gofpdf"

	"hrportal/internal/domain/auth"
)

type MatrixRow struct {
	Path    string `json:"path"`
	View    string `json:"view"`
	Allowed []bool `json:"allowed"`
}

// Matrix is the role-by-route access table derived from IsAllowed.
type Matrix struct {
	Roles []auth.Role `json:"roles"`
	Rows  []MatrixRow `json:"rows"`
}

func BuildMatrix(table []Route) Matrix {
	roles := auth.AllRoles()
	m := Matrix{Roles: roles}
	for _, route := range table {
		if route.Public {
			continue
		}
		row := MatrixRow{Path: route.Path, View: route.View, Allowed: make([]bool, len(roles))}
		for i := range roles {
			row.Allowed[i] = auth.IsAllowed(&roles[i], route.Roles)
		}
		m.Rows = append(m.Rows, row)
	}
	return m
}

func (m Matrix) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprint(tw, "PATH")
	for _, role := range m.Roles {
		fmt.Fprintf(tw, "\t%s", role)
	}
	fmt.Fprintln(tw)
	for _, row := range m.Rows {
		fmt.Fprint(tw, row.Path)
		for _, ok := range row.Allowed {
			fmt.Fprintf(tw, "\t%s", mark(ok))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func (m Matrix) WritePDF(w io.Writer, generatedAt time.Time) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Role access matrix")
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Generated %s", generatedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(10)

	const pathWidth, roleWidth, rowHeight = 70.0, 28.0, 7.0
	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(pathWidth, rowHeight, "Path", "1", 0, "L", false, 0, "")
	for _, role := range m.Roles {
		pdf.CellFormat(roleWidth, rowHeight, string(role), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, row := range m.Rows {
		pdf.CellFormat(pathWidth, rowHeight, row.Path, "1", 0, "L", false, 0, "")
		for _, ok := range row.Allowed {
			pdf.CellFormat(roleWidth, rowHeight, mark(ok), "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
	}
	return pdf.Output(w)
}

func mark(ok bool) string {
	if ok {
		return "x"
	}
	return "-"
}
