// Package signup is the spreadsheet-backed signup ledger: sheet parsing,
// visibility rules and capacity reconciliation shared by every signup domain.
package signup

// Mode selects how a signup request changes an open row.
type Mode int

const (
	// ModeCapacity appends a signee row and decrements the item count,
	// deleting the item row when it reaches zero.
	ModeCapacity Mode = iota
	// ModeClaimSlot rewrites the open row in place with the signer.
	ModeClaimSlot
)

// Domain describes one kind of signup sheet.
type Domain struct {
	Name                 string
	Keyword              string
	Layout               Layout
	RequireTitle         bool
	Mode                 Mode
	ConfirmationTemplate string
}

var (
	ServiceDomain = Domain{
		Name:    "service",
		Keyword: "signup",
		Layout: Layout{
			SignedUpOn: 0,
			Item:       1,
			Quantity:   2,
			Count:      3,
			Name:       4,
			Phone:      5,
			Email:      6,
			Notes:      7,
			Selection:  -1,
			Scale:      -1,
		},
		RequireTitle:         true,
		Mode:                 ModeCapacity,
		ConfirmationTemplate: "ServiceSignupConfirmation",
	}

	DevotionDomain = Domain{
		Name:    "devotion",
		Keyword: "bhajan",
		Layout: Layout{
			SignedUpOn: 10,
			Item:       1,
			Quantity:   -1,
			Count:      -1,
			Name:       2,
			Phone:      8,
			Email:      7,
			Notes:      9,
			Selection:  3,
			Scale:      4,
		},
		Mode:                 ModeClaimSlot,
		ConfirmationTemplate: "DevotionSignupConfirmation",
	}
)

// WithKeyword returns a copy of the domain that discovers documents by a
// different name keyword.
func (d Domain) WithKeyword(keyword string) Domain {
	if keyword != "" {
		d.Keyword = keyword
	}
	return d
}

// Domains indexes domains by name.
type Domains map[string]Domain

func NewDomains(domains ...Domain) Domains {
	out := Domains{}
	for _, d := range domains {
		out[d.Name] = d
	}
	return out
}

func (d Domains) Lookup(name string) (Domain, bool) {
	domain, ok := d[name]
	return domain, ok
}
