// Package keybunker is a remote signing delegation core: sessions, permissions
// and request dispatch for NIP-46 bunkers and NIP-47 wallet services.
package keybunker

// Version is the release of the module.
var Version = "v0.1.0"
