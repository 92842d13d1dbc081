package server

// Version is stamped at build time with -ldflags "-X medvault/api/server.Version=...".
var Version = "v0.1.0-dev"

// NodeVersion returns the running server version.
func NodeVersion() string { return Version }

// APIVersion returns the HTTP API version.
func APIVersion() string { return "v1" }
