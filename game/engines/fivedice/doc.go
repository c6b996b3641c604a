// Package fivedice implements the reference rules engine: a hidden-dice
// game. Every player rolls a cup of dice face down; on your turn you may
// reroll any subset a limited number of times or stand. Once everyone has
// stood, cups are revealed and the highest total takes first place.
//
// The dice are the hidden information — a player only ever sees their own
// cup until the game finishes — which makes the game a full exercise of the
// engine contract's redaction and terminal-summary requirements.
//
// All randomness is derived from a seed drawn once at game creation and
// stored in the blob, so every subsequent engine call is deterministic given
// its inputs.
package fivedice
