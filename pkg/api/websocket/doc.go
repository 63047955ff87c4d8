// Package websocket streams the lifecycle events of one run to a client.
//
// A connection first receives a snapshot of the run record, then every run
// and step event of that run until the run terminates or the client leaves.
package websocket
