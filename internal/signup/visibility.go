package signup

// Caller is the authenticated person making a request.
type Caller struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phoneNumber"`
}

// Viewer is a caller together with their admin standing.
type Viewer struct {
	Caller
	IsAdmin bool
}

// CanSee reports whether the viewer may see a signee row: admins see every
// row, everyone else only rows carrying their own email.
func (v Viewer) CanSee(row Row) bool {
	if v.IsAdmin {
		return true
	}
	return v.Email != "" && row.Email == v.Email
}

// FilterSignees returns the signee rows visible to the viewer. includeAll
// only has an effect for admins, who see every row either way.
func FilterSignees(rows []Row, viewer Viewer, includeAll bool) []Row {
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		if (includeAll && viewer.IsAdmin) || viewer.CanSee(row) {
			out = append(out, row)
		}
	}
	return out
}

// Visible returns a copy of the sheet with only the viewer's signees.
func (s Sheet) Visible(viewer Viewer, includeAll bool) Sheet {
	s.Signees = FilterSignees(s.Signees, viewer, includeAll)
	return s
}
