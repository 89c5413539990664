// Package mqtt provides MQTT connectivity for beamcore.
//
// The broker is the bridge between the acquisition core and the beamline
// control system: an IOC gateway mirrors process variables onto
// beamcore/channel/{name}/value and applies writes published to
// beamcore/channel/{name}/set. Asset documents can also be published for
// downstream consumers on beamcore/asset/{kind}.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and payload size checks
//   - Subscriptions that are restored after reconnect
//   - Last Will and Testament (LWT) on beamcore/system/status
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllChannelValues(), 1,
//	    func(topic string, payload []byte) error {
//	        name, _, _ := mqtt.ParseChannelTopic(topic)
//	        log.Printf("%s = %s", name, payload)
//	        return nil
//	    })
package mqtt
