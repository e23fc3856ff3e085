// Package entity keeps local mirrors of server objects.
//
// A Manager wraps the latest snapshot of one object and exposes Updated and
// Removing notifications. A Collection owns managers (or types embedding one),
// keyed by id, and reconciles them against authoritative lists from the server
// without replacing instances that survive, so subscribers stay attached.
//
// Disposal order is fixed: Removing fires, the manager's owned subscriptions are
// released, then the entity is detached from its collection and Removed fires.
package entity
