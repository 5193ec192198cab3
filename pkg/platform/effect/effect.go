// Package effect describes side effects that state transitions request but
// never perform. Transitions return a slice of Effect; the calling service
// hands it to a dispatcher after the aggregate has been persisted.
package effect

import (
	"fmt"

	id "custodian/pkg/domain"
)

// Kind discriminates the effect payload.
type Kind string

const (
	KindNotify             Kind = "notify"
	KindRequestCustodyForm Kind = "request_custody_form"
)

// Channel is an operational notification audience.
type Channel string

const (
	ChannelWarehouse      Channel = "warehouse"
	ChannelLogistics      Channel = "logistics"
	ChannelElectionStatus Channel = "election_status"
)

// Effect is a single side-effect instruction.
type Effect struct {
	Kind    Kind
	Channel Channel
	Message string
	// ManifestID is set for KindRequestCustodyForm.
	ManifestID id.ManifestID
}

// Notify requests a plain-text message on a channel.
func Notify(channel Channel, format string, args ...any) Effect {
	return Effect{Kind: KindNotify, Channel: channel, Message: fmt.Sprintf(format, args...)}
}

// RequestCustodyForm asks for a chain-of-custody form to be generated for a
// completed manifest.
func RequestCustodyForm(manifestID id.ManifestID) Effect {
	return Effect{Kind: KindRequestCustodyForm, ManifestID: manifestID}
}

// Of filters effects by kind.
func Of(effects []Effect, kind Kind) []Effect {
	var out []Effect
	for _, e := range effects {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
