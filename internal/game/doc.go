// Package game implements the Spades rules engine.
//
// The main type is GameState, a single aggregate holding the four seats, the
// two partnerships, the trick in progress and the running scores. Every
// transition is a function that takes a state and returns a new one; the
// input is never modified, so a rejected action leaves the caller's state
// untouched and any sequence of actions can be replayed.
//
// # Basic Usage
//
//	s, _ := game.New(game.Config{
//	    ID:           "g1",
//	    Mode:         deck.ModeAceHigh,
//	    WinningScore: 500,
//	    Players:      roster,
//	    Seed:         42,
//	})
//	s, _ = game.Start(s)
//	s, err := game.PlaceBid(s, s.CurrentPlayer().ID, 3)
//	...
//	s, err = game.PlayCard(s, playerID, "AS")
//	if s.TrickComplete() {
//	    s, _ = game.CollectTrick(s)
//	}
//
// # Tricks
//
// When the fourth card lands the trick is resolved immediately (winner,
// trick counts, next player) but stays in CurrentTrick so it can be shown.
// CollectTrick clears it and, once every hand is empty, scores the round and
// either ends the game or deals the next round.
//
// # Deterministic Deals
//
// Round n is dealt from randutil.Derive(Seed, n), so the full game is a pure
// function of its configuration and the action sequence. ViewFor strips the
// seed along with opponents' hands.
package game
