// Package engine implements the sandboxed execution core: the tagged value
// model, bounds-checked linear memory, the function registry and instance
// lifecycle, and the stack-machine bytecode interpreter.
//
// Engine owns Modules, a Module owns the Instances created from it, and an
// Instance owns at most one Memory plus name-keyed function and global
// tables. Instance.Call is the single dispatch path for both host closures
// and guest bytecode.
package engine
