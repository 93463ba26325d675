package ingest

import "strings"

// Route describes a parsed MQTT topic.
type Route struct {
	Handler  string // "merge"
	SourceID string // trailing segment of .../merge/{source_id}, if any
}

// ParseTopic maps an MQTT topic string to a Route.
//
// Routing looks only at the trailing segments, so any prefix works as long
// as MQTT_TOPICS subscribes to it:
//
//	.../merge              → merge
//	.../merge/{source_id}  → merge, SourceID set
func ParseTopic(topic string) *Route {
	parts := strings.Split(topic, "/")
	n := len(parts)
	if n < 2 {
		return nil
	}

	switch {
	case parts[n-1] == "merge":
		return &Route{Handler: "merge"}
	case parts[n-2] == "merge" && parts[n-1] != "" && n >= 3:
		return &Route{Handler: "merge", SourceID: parts[n-1]}
	}
	return nil
}
