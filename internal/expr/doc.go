// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

/*
Package expr holds the untyped abstract syntax tree of typedsql queries and
compiles it into SQL for a given dialect. Type information lives in the
public package; by the time a query reaches expr every value has already been
encoded into a driver value by the codec of its column.

The package is split in two stages.

# AST

Select, Insert, Update and Delete nodes reference tables and columns by name.
Predicates are Comparison, Connective and Not nodes. Nodes are plain values
and are never modified after construction, so they can be shared freely.

# Compile stage

Compile walks a node and writes the SQL for it, numbering the query
parameters in the order they appear and asking the dialect for placeholder
and quoting syntax. It performs structural checks only (for example that a
join has a condition); it does not interact with the database.
*/
package expr
