package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes owned by this service.
const (
	// TopicPrefixSystem is the base for service status topics.
	TopicPrefixSystem = "couchcontrol/system"

	// TopicPrefixSelection is the base for retained per-entry selections.
	TopicPrefixSelection = "couchcontrol/selection"
)

// Statestream leaf names.
const (
	LeafState      = "state"
	LeafAttributes = "attributes"
)

// Topics provides builders for the topics this service publishes and the
// statestream topics it consumes.
//
//	topics := mqtt.Topics{}
//	topics.StateStreamStates("homeassistant/statestream")
//	// Returns: "homeassistant/statestream/+/+/state"
type Topics struct{}

// SystemStatus returns the retained online/offline status topic.
//
// Example: couchcontrol/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// Selection returns the retained topic carrying one entry's committed selection.
//
// Example: couchcontrol/selection/01J9Z...
func (Topics) Selection(entryID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixSelection, entryID)
}

// StateStreamStates returns the wildcard for every entity's state leaf.
//
// Example: homeassistant/statestream/+/+/state
func (Topics) StateStreamStates(prefix string) string {
	return fmt.Sprintf("%s/+/+/%s", strings.TrimSuffix(prefix, "/"), LeafState)
}

// StateStreamAttributes returns the wildcard for every entity's attributes leaf.
//
// Example: homeassistant/statestream/+/+/attributes
func (Topics) StateStreamAttributes(prefix string) string {
	return fmt.Sprintf("%s/+/+/%s", strings.TrimSuffix(prefix, "/"), LeafAttributes)
}

// StateStreamTopic names one entity's leaf, the inverse of ParseStateStreamTopic.
//
// Example: homeassistant/statestream/light/kitchen/state
func (Topics) StateStreamTopic(prefix, entityID, leaf string) string {
	domain, objectID, _ := strings.Cut(entityID, ".")
	return fmt.Sprintf("%s/%s/%s/%s", strings.TrimSuffix(prefix, "/"), domain, objectID, leaf)
}

// ParseStateStreamTopic splits <prefix>/<domain>/<object_id>/<leaf> into the
// entity id ("<domain>.<object_id>") and leaf. ok is false when topic does
// not sit directly under prefix or has the wrong depth.
func ParseStateStreamTopic(prefix, topic string) (entityID, leaf string, ok bool) {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	rest, found := strings.CutPrefix(topic, prefix)
	if !found {
		return "", "", false
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[0] + "." + parts[1], parts[2], true
}
