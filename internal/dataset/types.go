package dataset

// Entry is one preview row of an uploaded CSV. JSON keys match the backend
// payload exactly, including the spaced column name.
type Entry struct {
	EquipmentName string  `json:"Equipment Name"`
	Type          string  `json:"Type"`
	Flowrate      float64 `json:"Flowrate"`
	Pressure      float64 `json:"Pressure"`
	Temperature   float64 `json:"Temperature"`
}

// Statistics is the server-computed aggregate for one dataset.
type Statistics struct {
	Count         int            `json:"count"`
	AvgPressure   float64        `json:"avg_pressure"`
	AvgTemp       float64        `json:"avg_temp"`
	Types         map[string]int `json:"types"`
	RecentEntries []Entry        `json:"recent_entries"`
}

// Dataset identifies one uploaded CSV and its statistics. Values are
// immutable once received from the backend; selection replaces, never
// mutates.
type Dataset struct {
	ID       int64      `json:"id"`
	Filename string     `json:"filename"`
	Date     string     `json:"date"`
	Stats    Statistics `json:"stats"`
}
