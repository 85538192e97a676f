// Package bridge connects the game loop to MQTT.
//
// Outbound it keeps the retained state and per-module topics current and
// publishes state, strike, solve and time events. Inbound it accepts
// operator commands on the command topic, runs them through the game
// loop and publishes an ack with the result.
//
//	b, err := bridge.New(bridge.Options{Client: client, Controller: runner, Topics: client.Topics()})
//	orch.AddHooks(b.Hooks())
//	b.Start(ctx)
//	defer b.Stop()
package bridge
