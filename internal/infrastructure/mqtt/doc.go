// Package mqtt provides MQTT client connectivity for the DTU ingest service.
//
// The broker is an optional second frame source next to the TCP listener,
// and the sink for change events:
//
//	gateways ─ dtu/frame/{id} ─▶ broker ─▶ ingest
//	ingest ─ dtu/event/{id}/changed ─▶ broker ─▶ consumers
//
// The broker session is clean: after every reconnect the client
// re-subscribes dtu/frame/+ itself and republishes its retained online
// status. A retained offline Last Will on dtu/system/status tells
// consumers a crashed instance from a stopped one. Without a configured
// client ID one is derived from the hostname.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.SubscribeFrames(client.QoS(), func(id string, frame []byte) error {
//	    return processor.Submit(ctx, frame)
//	})
//	...
//	client.UnsubscribeFrames() // before draining the processor
package mqtt
