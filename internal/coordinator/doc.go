// Package coordinator owns the lifecycle of one recording session at a
// time: it drives the recorder, the stream bus, the disk writer, and
// the streaming transcriber, mirrors progress onto the session state
// machine, and reports finished sessions to the catalog. One
// coordinator per process, explicitly constructed and injected.
package coordinator
