// Package dimensional derives the channel and date dimensions and the message
// and image-detection facts from the raw warehouse tables.
//
// The pure Build* functions compute rows in memory and sort them
// deterministically; Builder replaces the marts under the exclusive rebuild
// lock so loads never observe a half-built star schema.
package dimensional
