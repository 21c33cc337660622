// Package kaldi reads and writes Kaldi archives, scripts and the numeric
// records they hold.
//
// Every record is either binary or ASCII, told apart by its first two bytes.
// Binary records start with "\x00B"; integers are written as a size tag (4)
// followed by a little-endian int32, and sample arrays carry a three byte
// type marker ("FM ", "DM ", "FV ", "DV "). ASCII matrices start with " [".
//
// An archive is a run of "<key> <record>" pairs with nothing in between. A
// script is a text file of "<key> <path>:<offset>" lines pointing into
// archives.
//
// Decoders take any io.Reader and never read past the record they decode, so
// one reader can be handed from call to call. Functions that open a path
// close it before returning; readers supplied by the caller are never closed.
package kaldi
