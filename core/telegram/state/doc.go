// Package state stores per-user conversation sessions: the current FSM state
// plus bot-defined data. It is domain-agnostic so it can be reused across bots;
// backends are in-memory (single process) and Redis.
package state
