// Package mqtt provides the broker connection used for device traffic.
//
// Greenhouse devices publish JSON envelopes on a shared topic and read
// acknowledgements from it. This package handles:
//   - Connection with auto-reconnect and exponential backoff
//   - Mutual TLS from configured CA, client certificate and key paths
//   - Subscriptions that survive reconnects
//   - A retained status on aigrow/system/status with a last will for crashes
//
// Nothing here is compiled in: broker address, certificates and client id
// all come from config.MQTTConfig.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(config.DefaultTopic, 1,
//	    func(topic string, payload []byte) error {
//	        return nil
//	    })
package mqtt
