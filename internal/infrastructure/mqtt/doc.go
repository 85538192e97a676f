// Package mqtt provides the MQTT client used to mirror the game onto a
// broker for scoreboards, props and remote operator consoles.
//
// Topic tree (prefix configurable, default "defuse"):
//
//	defuse/state            retained game snapshot
//	defuse/module/{addr}    retained per-module record
//	defuse/event/{kind}     state, strike, solved, time
//	defuse/health           retained online/offline, also the LWT
//	defuse/command          operator commands (JSON)
//	defuse/command/ack      command results
//
// The client reconnects with the configured backoff, restores its
// subscriptions and republishes online health after every reconnect.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.Command(), 1, func(topic string, payload []byte) error {
//	    return handleCommand(payload)
//	})
package mqtt
