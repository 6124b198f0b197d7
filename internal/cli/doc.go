// Package cli implements the whispertype command tree: record drives a
// live recording session end to end, sessions browses the catalog,
// export renders a stored transcript, and doctor checks the local
// environment.
package cli
