// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

/*
Package typeinfo holds the registry of semantic types known to typedsql. Each
Go type that can be stored in a column has exactly one Codec: a pair of
functions converting values of that type to driver values and back. Columns
resolve their codec once, when they are defined, so no lookup happens while
queries are built or rows are read.

As much as possible, reflection code is limited to this package.
*/
package typeinfo
