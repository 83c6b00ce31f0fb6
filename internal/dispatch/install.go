// File: internal/dispatch/install.go
//
// Implements handler installation and removal: for a given
// worker feature set, decide which AM ids are active, install them on
// every compatible interface, and — before that interface is closed —
// replace every installed id with the transport's no-op drop handler so no
// callback can fire into freed worker memory during teardown.
package dispatch

import (
	"sort"

	"github.com/coriolis-systems/workercore/api"
	"github.com/coriolis-systems/workercore/logging"
)

// Installer tracks which AM ids are active on a worker and installs/clears
// them across that worker's interfaces.
type Installer struct {
	active map[api.AMID]api.AMHandlerRecord
	log    logging.Logger
}

// NewInstaller computes the active set: an AM id is active on a worker if
// its FeatureGate intersects the worker's own feature set.
func NewInstaller(workerFeatures api.FeatureFlag, table []api.AMHandlerRecord, log logging.Logger) *Installer {
	if log == nil {
		log = logging.Nop()
	}
	in := &Installer{active: make(map[api.AMID]api.AMHandlerRecord), log: log}
	for _, rec := range table {
		if workerFeatures.Intersects(rec.FeatureGate) {
			in.active[rec.ID] = rec
		}
	}
	return in
}

// ActiveIDs returns every AM id active on this worker, ascending.
func (in *Installer) ActiveIDs() []api.AMID {
	ids := make([]api.AMID, 0, len(in.active))
	for id := range in.active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// InstallOn installs every active handler compatible with cap onto ifc. A
// sync handler is never installed on an interface lacking
// FeatureAMSyncCallback — the atomic/transport selector must route those
// protocols elsewhere.
func (in *Installer) InstallOn(ifc api.Interface, cap api.CapabilityRecord) error {
	for id, rec := range in.active {
		if rec.Kind == api.CallbackSync && !cap.Features.Has(api.FeatureAMSyncCallback) {
			in.log.Debug("skip sync AM handler on iface lacking sync-callback",
				logging.F("am_id", id))
			continue
		}
		if err := ifc.InstallAMHandler(id, rec.Kind, rec.Handler); err != nil {
			return err
		}
		if rec.Tracer != nil {
			if err := ifc.InstallAMTracer(id, rec.Tracer); err != nil {
				return err
			}
		}
	}
	return nil
}

// DropAll installs the drop handler for every active id on ifc. Called on
// every interface before that interface is closed.
func (in *Installer) DropAll(ifc api.Interface) {
	for id := range in.active {
		if err := ifc.ClearAMHandler(id); err != nil {
			in.log.Warn("drop handler install failed during teardown",
				logging.F("am_id", id), logging.F("err", err))
		}
	}
}
