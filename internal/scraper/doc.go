// Package scraper collects channel posts into the partitioned JSON lake.
//
// A Source opens one session (a synthetic generator or an MTProto client) and
// serves per-channel fetches inside it. Scraper retries each channel
// independently and writes one lake file per channel, so a failing channel
// never discards the posts already collected from its siblings.
package scraper
