package engine

import (
	"context"
	"fmt"

	"github.com/roach88/cadence/internal/calendar"
)

// Resource names a kind of directory entry an event refers to.
type Resource string

const (
	Clinician Resource = "clinician"
	Location  Resource = "location"
	Client    Resource = "client"
	Status    Resource = "status"
	Service   Resource = "service"
)

// Directory answers whether referenced ids exist. Clinicians, locations,
// clients, statuses and services are owned elsewhere; the engine only asks.
type Directory interface {
	Exists(ctx context.Context, r Resource, id int64) (bool, error)
}

// AllowAll is a Directory that accepts every id.
type AllowAll struct{}

// Exists always reports true.
func (AllowAll) Exists(context.Context, Resource, int64) (bool, error) { return true, nil }

// StaticDirectory is a Directory over fixed id sets. A resource with no
// entry in the map accepts every id.
type StaticDirectory map[Resource]map[int64]bool

// Exists reports whether id is listed for r.
func (d StaticDirectory) Exists(_ context.Context, r Resource, id int64) (bool, error) {
	ids, ok := d[r]
	if !ok {
		return true, nil
	}
	return ids[id], nil
}

type reference struct {
	r     Resource
	field string
	id    int64
}

// checkReferences verifies every id ev refers to.
func (e *Engine) checkReferences(ctx context.Context, ev *calendar.Event) error {
	refs := []reference{
		{Clinician, "clinician_id", ev.ClinicianID},
		{Location, "location_id", ev.LocationID},
		{Client, "client_id", ev.ClientID},
		{Status, "status_id", ev.StatusID},
	}
	for i, l := range ev.Services {
		refs = append(refs, reference{Service, fmt.Sprintf("services[%d].service_id", i), l.ServiceID})
	}

	for _, ref := range refs {
		if ref.id == 0 {
			continue
		}
		ok, err := e.dir.Exists(ctx, ref.r, ref.id)
		if err != nil {
			return fmt.Errorf("look up %s %d: %w", ref.r, ref.id, err)
		}
		if !ok {
			out := NewReferenceNotFoundError(ref.field, ref.id)
			out.EventID = ev.ID
			return out
		}
	}
	return nil
}
