// Package protocol implements the line-oriented request format the server
// speaks: Reset/Parse/Build turn raw connection bytes into Command values,
// following the memcached text protocol closely enough for a standard
// memcache client to talk to it.
package protocol
