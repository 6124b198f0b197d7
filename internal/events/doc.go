// Package events carries fire-and-forget lifecycle notifications from
// the coordinator to monitoring consumers such as the websocket feed.
package events
