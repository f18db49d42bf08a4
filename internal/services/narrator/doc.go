// Package narrator contains the LLM-narrated session engine.
//
// A room owns one game.GameState. Each turn, the session coordinator hands
// the collected player actions to the current mode state, which assembles a
// prompt through the context builder, drives the LLM tool-calling loop, and
// resolves mechanics through the rules engine. Everything that happens during
// the turn is reported as an ordered stream of event.Event values.
//
// Sub-packages stay free of transport concerns; HTTP delivery, user sessions
// and host persistence belong to callers.
package narrator
