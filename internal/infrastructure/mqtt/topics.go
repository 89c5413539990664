package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the beamcore MQTT hierarchy.
//
//	beamcore/channel/{name}/set    setpoint writes from the core
//	beamcore/channel/{name}/value  retained readbacks from the IOC gateway
//	beamcore/asset/{kind}          resource and datum documents
//	beamcore/system/status         online/offline with LWT
const (
	// TopicPrefix is the root of every beamcore topic.
	TopicPrefix = "beamcore"

	// TopicPrefixChannel is the base for control-system channel traffic.
	TopicPrefixChannel = "beamcore/channel"

	// TopicPrefixAsset is the base for asset document publication.
	TopicPrefixAsset = "beamcore/asset"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "beamcore/system"
)

// Topics provides builders for beamcore MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.ChannelSet("BL15:SHUTTER")   // "beamcore/channel/BL15:SHUTTER/set"
type Topics struct{}

// ChannelSet returns the topic setpoints are written to.
//
// Example: beamcore/channel/IMS:MOTOR3/set
func (Topics) ChannelSet(name string) string {
	return fmt.Sprintf("%s/%s/set", TopicPrefixChannel, name)
}

// ChannelValue returns the topic carrying the latest value of a channel.
//
// Example: beamcore/channel/IMS:MOTOR3.RBV/value
func (Topics) ChannelValue(name string) string {
	return fmt.Sprintf("%s/%s/value", TopicPrefixChannel, name)
}

// AssetDocument returns the topic for a given document kind ("resource" or "datum").
//
// Example: beamcore/asset/datum
func (Topics) AssetDocument(kind string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixAsset, kind)
}

// SystemStatus returns the system status topic.
//
// Example: beamcore/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllChannelValues returns a pattern matching every channel value topic.
//
// Pattern: beamcore/channel/+/value
func (Topics) AllChannelValues() string {
	return fmt.Sprintf("%s/+/value", TopicPrefixChannel)
}

// AllAssetDocuments returns a pattern matching every asset document topic.
//
// Pattern: beamcore/asset/+
func (Topics) AllAssetDocuments() string {
	return fmt.Sprintf("%s/+", TopicPrefixAsset)
}

// ParseChannelTopic extracts the channel name and action ("set" or "value")
// from a channel topic. ok is false for anything else.
func ParseChannelTopic(topic string) (name, action string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixChannel+"/")
	if !found {
		return "", "", false
	}
	idx := strings.LastIndex(rest, "/")
	if idx <= 0 {
		return "", "", false
	}
	name, action = rest[:idx], rest[idx+1:]
	if action != "set" && action != "value" {
		return "", "", false
	}
	return name, action, true
}
