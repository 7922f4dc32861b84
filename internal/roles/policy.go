package roles

// Capability is a UI- or endpoint-facing permission class.
type Capability string

const (
	CapReadOnly         Capability = "read_only"
	CapChat             Capability = "chat"
	CapAdminScreens     Capability = "admin_screens"
	CapSecuritySettings Capability = "security_settings"
	CapUserManagement   Capability = "user_management"
	CapMonitoring       Capability = "monitoring"
	CapCompanyConfig    Capability = "company_config"
	CapAPIKeys          Capability = "api_keys"
	CapModelSetup       Capability = "model_setup"
	CapCrossCompany     Capability = "cross_company"
)

// policy lists each capability with the minimum level that grants it.
// Order matters: Capabilities returns entries in this order.
var policy = []struct {
	cap Capability
	min Level
}{
	{CapReadOnly, Demo},
	{CapChat, User},
	{CapAdminScreens, Admin},
	{CapSecuritySettings, Administrator},
	{CapUserManagement, Administrator},
	{CapMonitoring, Administrator},
	{CapCompanyConfig, Owner},
	{CapAPIKeys, Owner},
	{CapModelSetup, Owner},
	{CapCrossCompany, SuperUser},
}

// HasAccessLevel reports whether level satisfies required.
func HasAccessLevel(level, required Level) bool {
	return level >= required
}

// EffectiveLevel returns the level used for authorization. A test role
// override only applies to developer accounts; for anyone else it is ignored.
// The override can only lower the level, never raise it above real.
func EffectiveLevel(real Level, isDeveloper bool, testRole *Level) Level {
	if !isDeveloper || testRole == nil {
		return real
	}
	return min(real, *testRole)
}

// MinimumFor returns the level needed for c. Unknown capabilities require
// SuperUser.
func MinimumFor(c Capability) Level {
	for _, p := range policy {
		if p.cap == c {
			return p.min
		}
	}
	return SuperUser
}

// Can reports whether level grants c.
func Can(level Level, c Capability) bool {
	return HasAccessLevel(level, MinimumFor(c))
}

// Capabilities returns every capability granted at level.
func Capabilities(level Level) []Capability {
	out := []Capability{}
	for _, p := range policy {
		if HasAccessLevel(level, p.min) {
			out = append(out, p.cap)
		}
	}
	return out
}
