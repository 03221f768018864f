package reference

import (
	"fmt"
	"strconv"

	"github.com/couchcryptid/parking-recommender/internal/domain"
)

// Routing modes accepted by NewRouter.
const (
	RoutingMembership = "membership"
	RoutingNumeric    = "numeric"
)

// DefaultNumericThreshold is the smallest numeric facility code treated as
// real-time under numeric routing.
const DefaultNumericThreshold = 110

// Router decides whether a facility belongs to the real-time registry.
type Router interface {
	IsRealtime(facilityID string) bool
}

// MembershipRouter treats a facility as real-time when the real-time table lists it.
type MembershipRouter struct {
	table *TariffTable
}

func NewMembershipRouter(realtime *TariffTable) *MembershipRouter {
	return &MembershipRouter{table: realtime}
}

func (r *MembershipRouter) IsRealtime(facilityID string) bool {
	return r.table != nil && r.table.Contains(facilityID)
}

// NumericRouter treats purely numeric identifiers at or above a threshold as real-time.
type NumericRouter struct {
	Threshold int
}

func (r NumericRouter) IsRealtime(facilityID string) bool {
	id := domain.NormalizeFacilityID(facilityID)
	if id == "" {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	n, err := strconv.Atoi(id)
	if err != nil {
		return false
	}
	return n >= r.Threshold
}

// NewRouter builds the router for a routing mode.
func NewRouter(mode string, threshold int, realtime *TariffTable) (Router, error) {
	switch mode {
	case "", RoutingMembership:
		return NewMembershipRouter(realtime), nil
	case RoutingNumeric:
		return NumericRouter{Threshold: threshold}, nil
	default:
		return nil, fmt.Errorf("unknown registry routing mode %q", mode)
	}
}
