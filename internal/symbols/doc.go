// Package symbols maps code addresses in a firmware image to function names.
//
// Load reads the ELF symbol table; function symbols form an address-sorted
// index searched with a binary search. Thumb addresses are accepted as-is:
// bit 0 is cleared both when the index is built and on every query.
//
// A symbol with size zero (hand-written assembly usually has no size)
// covers everything up to the next indexed symbol. A query that hits no
// symbol yields a Resolution with Known unset rather than an error, so crash
// reports can still show the raw address.
package symbols
