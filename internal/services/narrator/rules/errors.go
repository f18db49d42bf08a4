package rules

import "errors"

// ErrInvalidFormula indicates a dice formula could not be parsed.
var ErrInvalidFormula = errors.New("invalid dice formula")

// ErrCharacterNotFound indicates no cached state or resolvable template exists
// for a character id.
var ErrCharacterNotFound = errors.New("character not found")

// ErrNegativeDamage indicates a damage amount below zero.
var ErrNegativeDamage = errors.New("damage must be non-negative")

// ErrNegativeHealing indicates a healing amount below zero.
var ErrNegativeHealing = errors.New("healing must be non-negative")

// ErrInvalidAbility indicates an ability name outside the six scores.
var ErrInvalidAbility = errors.New("invalid ability")
