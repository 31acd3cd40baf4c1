package ros

import "github.com/openrobots-dev/urosnode/typereg"

// registerMessageType freezes mt's identity into the process-wide message
// registry (spec.md §3: "registered once at boot into a global process-wide
// registry keyed by name"). Advertising or subscribing the same type from
// several topics is expected and not an error; only the first registration
// sticks, later ones are no-ops since the descriptor is identical.
func registerMessageType(mt MessageType) {
	if _, ok := typereg.Messages.FindByName(mt.Name()); ok {
		return
	}
	typereg.Messages.Register(typereg.TypeDescriptor{
		Name:        mt.Name(),
		Description: mt.Text(),
		MD5Sum:      mt.MD5Sum(),
	})
}

// registerServiceType is registerMessageType's counterpart for the separate
// service-type registry spec.md §3 calls for.
func registerServiceType(st ServiceType) {
	if _, ok := typereg.Services.FindByName(st.Name()); ok {
		return
	}
	typereg.Services.Register(typereg.TypeDescriptor{
		Name:   st.Name(),
		MD5Sum: st.MD5Sum(),
	})
}
