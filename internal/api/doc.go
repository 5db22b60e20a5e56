// Package api provides the HTTP REST API and websocket server for the
// Bulbnet relay.
//
// It exposes device reads and targeted status updates, account signup and
// login, audit queries, and a ticket-authenticated websocket push channel
// for UI clients.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
