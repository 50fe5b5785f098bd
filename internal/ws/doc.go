// Package ws carries the bridge protocol over a WebSocket connection.
//
// Each text frame holds exactly one protocol line. A Conn implements
// bridge.Transport, so a bridge daemon can serve a browser or any other
// WebSocket client the same way it serves stdin and stdout.
//
// Reads and writes follow gorilla/websocket's concurrency rules: ReadLine
// is called from one goroutine, and every frame, including keepalive pings,
// is written by a single write pump.
package ws
