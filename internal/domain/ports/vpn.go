package ports

import "context"

// VPNRestartOutcome carries the control API's optional detail strings for
// the stop and start phases of a restart.
type VPNRestartOutcome struct {
	StopOutcome  *string
	StartOutcome *string
}

func (o VPNRestartOutcome) String() string {
	detail := func(v *string) string {
		if v == nil {
			return "<none>"
		}
		return *v
	}
	return "stop_outcome=" + detail(o.StopOutcome) + ", start_outcome=" + detail(o.StartOutcome)
}

// VPNController drives the external network-isolation container through a
// full stop/start cycle.
type VPNController interface {
	Restart(ctx context.Context) (VPNRestartOutcome, error)
}
