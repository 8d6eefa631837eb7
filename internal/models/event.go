package models

// EventIncomingMessage is raised once per unique message received by the
// modem transport.
const EventIncomingMessage = "incomingMessage"

// PossibleEvents is the closed set of domain event names webhooks can
// subscribe to.
var PossibleEvents = []string{EventIncomingMessage}

func KnownEvent(name string) bool {
	for _, e := range PossibleEvents {
		if e == name {
			return true
		}
	}
	return false
}
