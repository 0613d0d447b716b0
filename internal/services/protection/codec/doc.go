// Package codec converts between stored protection and history rows and the
// domain entities.
//
// The protection data column is a JSON object. The `rights` and `flags`
// members are decoded into permissions and flags; every other member is kept
// verbatim and in order so data written by newer versions survives a save.
// Blank data is an empty object. Data that is not a JSON object is kept as
// raw bytes and written back unchanged unless permissions or flags are
// replaced.
package codec
