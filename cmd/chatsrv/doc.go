// Package `chatsrv` implements relay server application for chat over TCP.
//
// Every line received from one client is relayed to all other connected clients.
// Optionally the server exposes HTTP gateway (health, stats and websocket entry)
// and shares the chat with other instances through Redis.
//
// To compile chat server locally, run from package directory:
//
//	go install .
//
// Or quickly launch server with command:
//
//	go run . -port 5555
//
// Exit status is 2 when the port is already in use and 1 on other failures.
package main
