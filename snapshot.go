package bringup

// Service is the observed state of one tracked systemd unit.
// Enabled and Active are read from the init system at inspection time
// and never cached across invocations.
type Service struct {
	Name    string
	Enabled bool
	Active  bool
}

// SystemSnapshot is a point-in-time view of the whole topology:
// the database tier plus every tracked service, in declared order.
type SystemSnapshot struct {
	DB       DBState
	Services []Service
}

// Converged reports whether nothing needs to happen: the database is
// healthy and every tracked service is active.
func (s SystemSnapshot) Converged() bool {
	if s.DB != DBHealthy {
		return false
	}
	for _, svc := range s.Services {
		if !svc.Active {
			return false
		}
	}
	return true
}

// InactiveServices returns the names of tracked services that are not
// active, in declared order.
func (s SystemSnapshot) InactiveServices() []string {
	var out []string
	for _, svc := range s.Services {
		if !svc.Active {
			out = append(out, svc.Name)
		}
	}
	return out
}

// AutostartEnabled returns the names of tracked services whose autostart
// flag is set. These are orchestrated manually and should have it cleared.
func (s SystemSnapshot) AutostartEnabled() []string {
	var out []string
	for _, svc := range s.Services {
		if svc.Enabled {
			out = append(out, svc.Name)
		}
	}
	return out
}
