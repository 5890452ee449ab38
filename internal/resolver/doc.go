// Package resolver turns user input into remote item references.
//
// Identifier-shaped input is decoded strictly and looked up directly; a
// malformed identifier is an error, never a search. Anything else is a
// free-text query whose results are ranked exact title first, then title
// prefix, then server order. Expand flattens series and seasons into their
// episodes so callers only ever sync leaf items.
package resolver
