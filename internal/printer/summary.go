package printer

// Summary is the catalog overview reported by status endpoints
type Summary struct {
	TotalPrinters  int      `json:"totalPrinters"`
	ActivePrinters int      `json:"activePrinters"`
	DefaultPrinter *string  `json:"defaultPrinter,omitempty"`
	Inactive       []string `json:"inactivePrinters"`
}

// Summarize counts printers by status. Active means online.
func Summarize(devices []Device) Summary {
	s := Summary{TotalPrinters: len(devices), Inactive: []string{}}
	for _, d := range devices {
		switch d.Status {
		case StatusOnline:
			s.ActivePrinters++
		case StatusInactive:
			s.Inactive = append(s.Inactive, d.ID)
		}
		if d.IsDefault && s.DefaultPrinter == nil {
			name := d.DisplayName
			s.DefaultPrinter = &name
		}
	}
	return s
}
