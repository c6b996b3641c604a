// Package websocket pushes live session updates to connected clients.
//
// Clients attach to one session and identify the user they act for. Every
// update is projected per viewer before it is sent, so a player only ever
// receives their own redacted view of a running game. A player's socket
// doubles as their online presence: attaching marks them open, a dropped
// socket marks them closed.
package websocket
