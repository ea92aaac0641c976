package models

// RegistryRecord is one row of the static aircraft database.
// Columns follow the OpenSky aircraft-database CSV export.
type RegistryRecord struct {
	ICAO24              string // Primary key - 6 hex digit ICAO address, lower case
	Registration        string // Aircraft registration (e.g., N12345)
	ManufacturerName    string // Manufacturer name
	Model               string // Aircraft model
	TypeCode            string // ICAO type designator (e.g., EC35)
	ICAOAircraftClass   string // ICAO description, first letter is the class (L2J, H1T ...)
	CategoryDescription string // Aircraft category description
	Operator            string // Operator name
	OperatorICAO        string // Operator ICAO code
	Owner               string // Owner name
	Country             string // Country of registration
	Built               string // Year built
}

// OperatorName returns the operator, falling back to the owner
func (r *RegistryRecord) OperatorName() string {
	if r.Operator != "" {
		return r.Operator
	}
	return r.Owner
}
