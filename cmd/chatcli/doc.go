// Package `chatcli` implements terminal client for the chat relay server.
//
// Each typed line is sent as "<name>: <line>", incoming lines are printed with
// the local receive time.
//
//	go run . -host localhost -port 5555 -name Alice
package main
