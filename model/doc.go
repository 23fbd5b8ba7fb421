// Package model defines stable boundary types for API layers.
//
// Canonical bytes and their CIDs are computed by package canon; these structs
// only report them. They are the types intended for direct JSON
// serialization, for example by the capcanon CLI's --json output.
package model
