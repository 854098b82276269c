// Package realtime serves the operator live feed of share link access
// attempts over WebSocket.
//
// Hub implements audit.Publisher; FeedGateway upgrades admin requests and
// streams access.new envelopes to subscribed clients.
package realtime
