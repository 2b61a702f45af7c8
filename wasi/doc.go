// Package wasi implements the syscall-style host/guest bridge: argument and
// environment introspection, scatter/gather I/O on the three standard
// stream descriptors, preopen introspection, and process exit. Every
// security-sensitive function consults the capability policy before
// touching a host resource, and all functions report results through a
// fixed errno-style enumeration rather than the engine's internal error
// taxonomy.
package wasi
