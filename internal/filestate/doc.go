// Package filestate implements the process-wide file-state cache, the
// byte-range lock and oplock manager, and the sharing/access admission
// control that sits on top of it.
//
// These three responsibilities share one package because lock and oplock
// operations are driven by file-state entries and execute under the
// entry's own lock — the cache owns the FileState, and the lock/oplock
// logic mutates that same struct's fields directly rather than through a
// second handle-keyed map.
package filestate
