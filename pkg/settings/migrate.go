package settings

// migration brings a record written by an older firmware up to date. Steps
// run in ascending order and every step whose version is above the stored one
// runs; none of them may end the sequence early.
type migration struct {
	below uint16
	apply func(r *Record)
}

var migrations = []migration{
	{below: 1, apply: func(r *Record) { r.ColorTheme = 0 }},
	{below: 2, apply: func(r *Record) { r.ClearNames() }},
	{below: 3, apply: func(r *Record) { r.Flags1 = 0 }},
	// version 4 introduced the CRC; the record body is unchanged
	{below: 5, apply: func(r *Record) { r.Language = 0 }},
}

// Migrate upgrades r in place and stamps the current version. It reports the
// number of steps applied. Records newer than Version are left alone; the
// caller decides what to do with them.
func Migrate(r *Record) int {
	if r.Version > Version {
		return 0
	}

	applied := 0
	for _, m := range migrations {
		if r.Version < m.below {
			m.apply(r)
			applied++
		}
	}
	r.Version = Version
	return applied
}
