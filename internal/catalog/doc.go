// Package catalog persists session metadata in a local SQLite database
// so finished recordings can be listed and exported after the fact.
package catalog
