package dispute

// Parties are the registered sides of a landlord/tenant dispute. Records are
// filed elsewhere; this package only reads them.
type Parties struct {
	Landlord    string
	Tenant      string
	DisputeType string
	ClaimAmount uint64
}

// Has reports whether identity is the landlord or the tenant.
func (p Parties) Has(identity string) bool {
	if identity == "" {
		return false
	}
	return identity == p.Landlord || identity == p.Tenant
}
