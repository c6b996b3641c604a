// Package config loads per-game-type tuning files.
//
// Tuning files are JSON documents in the config directory, one per game
// type, named <game_type>.json. A missing file means the engine runs with
// its built-in defaults; a present file overrides only the fields it sets.
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	var tuning fivedice.Config
//	if err := manager.Tuning(fivedice.GameType, &tuning); err != nil {
//		log.Fatal(err)
//	}
//	engine := fivedice.New(tuning)
package config
