// Package types defines the Store, Scope and table interfaces, the workout
// entity types, and the standard errors shared by every liftsync component.
//
// Components never talk to SQLite directly. They open a Scope, read and
// mutate entities through its typed tables, and call SaveChangesIfAny to
// commit the unit of work.
package types
