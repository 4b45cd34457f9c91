// Package provider implements the four catalogue clients behind the
// ModProvider interface: Modrinth, CurseForge, Spiget, and Hangar. See
// provider.go for the shared HTTP client, cache-key derivation, and search
// caching helper every client builds on.
package provider
