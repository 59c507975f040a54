// Package scope contains helpers for building a group of named beans
// together and tearing them down together. A "bean" is anything a scope
// owns for its lifetime, such as a connection pool or a transaction
// manager.
//
// Beans declare their dependencies through the arguments of their create
// functions and the scope calls them in a valid order. A scope that fails
// halfway through creation rolls back what it created, and a closed scope
// destroys its beans in reverse creation order. Scopes may be nested so
// that short-lived children can see the values of a long-lived parent.
package scope
