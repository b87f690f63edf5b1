package mqtt

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TopicPrefixSystem is the base for server status topics.
const TopicPrefixSystem = "aigrow/system"

// Topics provides builders for the server's own MQTT topics. Device
// traffic uses the configured mqtt.topics, which default to
// config.DefaultTopic.
type Topics struct{}

// SystemStatus returns the retained online/offline status topic.
//
// Example: aigrow/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
