// Package mqtt streams span events to an MQTT broker so a run can be
// watched live or collected by another process.
//
// Connection management is left to Eclipse Paho's autopaho, which
// reconnects in the background. Each (re)connect publishes a retained
// "online" to <topic>/availability and the will message flips it to
// "offline". Events are queued and published from one goroutine, so a
// slow or absent broker never stalls the agent; when the queue is full
// new events are dropped.
//
// Topics:
//
//	<topic>/run/<request_id>/<span path>   events tagged with a request id
//	<topic>/event/<span path>              everything else
//
// where the span path is the span name with dots as separators, e.g.
// tool.calculator becomes tool/calculator.
package mqtt
