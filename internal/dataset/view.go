package dataset

import "fmt"

// View is the single active screen identifier. The set is closed: adding a
// view means adding a constant here and a case to every switch over View.
type View string

const (
	ViewDashboard View = "dashboard"
	ViewUpload    View = "upload"
	ViewDataTable View = "datatable"
	ViewHistory   View = "history"
	ViewReports   View = "reports"
)

// DefaultView is rendered when nothing else has been selected.
const DefaultView = ViewDashboard

// Views returns all view identifiers in sidebar order.
func Views() []View {
	return []View{ViewDashboard, ViewUpload, ViewDataTable, ViewHistory, ViewReports}
}

// ParseView validates a raw view identifier.
func ParseView(raw string) (View, error) {
	switch View(raw) {
	case ViewDashboard, ViewUpload, ViewDataTable, ViewHistory, ViewReports:
		return View(raw), nil
	default:
		return "", fmt.Errorf("unknown view: %q", raw)
	}
}

// Title returns the human label shown in the page header breadcrumb.
func (v View) Title() string {
	switch v {
	case ViewDashboard:
		return "Dashboard"
	case ViewUpload:
		return "Upload"
	case ViewDataTable:
		return "Data Table"
	case ViewHistory:
		return "History"
	case ViewReports:
		return "Reports"
	default:
		return string(v)
	}
}
