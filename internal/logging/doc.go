// Package logging configures the zerolog logger shared by the client packages.
// Components take a zerolog.Logger and add a "component" field; nothing in the
// client writes through the standard library log package.
package logging
