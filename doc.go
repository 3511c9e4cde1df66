// Package skim contains the core components of Skim, a toolkit for
// bounded-memory approximate aggregation over columnar data. This root package
// defines types which are employed during the regular use of the toolkit, as
// well as in the extension of the toolkit, and is an excellent overview of
// Skim's key concepts.
package skim
