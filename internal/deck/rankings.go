package deck

import "sort"

// TrumpSuit is the native trump suit in both modes.
const TrumpSuit = Spades

const trumpBase = 100

// IsTrump reports whether a card counts as trump. In jjdd the jokers and the
// ♦2 are trump in addition to every spade.
func IsTrump(c Card, mode Mode) bool {
	if c.Suit == Spades {
		return true
	}
	if mode == ModeJJDD {
		return c.Suit == Joker || (c.Suit == Diamonds && c.Rank == Two)
	}
	return false
}

// LeadSuitOf returns the suit a card establishes when it leads a trick.
// Any trump-equivalent card leads trump.
func LeadSuitOf(c Card, mode Mode) Suit {
	if IsTrump(c, mode) {
		return TrumpSuit
	}
	return c.Suit
}

// FollowsSuit reports whether c counts as a member of suit for following.
// Trump-equivalent cards only follow a trump lead, so the jjdd ♦2 never
// follows diamonds.
func FollowsSuit(c Card, suit Suit, mode Mode) bool {
	if suit == TrumpSuit {
		return IsTrump(c, mode)
	}
	return c.Suit == suit && !IsTrump(c, mode)
}

// Power ranks a card within one trick. For a fixed (mode, leadSuit) every
// card that can win has a distinct value; cards that can never win score 0.
func Power(c Card, mode Mode, leadSuit Suit) int {
	if IsTrump(c, mode) {
		return trumpBase + trumpRank(c, mode)
	}
	if c.Suit == leadSuit {
		return int(c.Rank)
	}
	return 0
}

// trumpRank orders the trump ladder. In jjdd: ♠3..♠A, ♦2, ♠2, LJ, BJ.
func trumpRank(c Card, mode Mode) int {
	if mode != ModeJJDD {
		return int(c.Rank)
	}
	switch {
	case c.Suit == Diamonds && c.Rank == Two:
		return int(Ace) + 1
	case c.Suit == Spades && c.Rank == Two:
		return int(Ace) + 2
	case c.Suit == Joker && c.Rank == LittleJoker:
		return int(Ace) + 3
	case c.Suit == Joker && c.Rank == BigJoker:
		return int(Ace) + 4
	default:
		return int(c.Rank)
	}
}

// SortHand returns a copy of hand in display order: by suit then rank in
// ace_high, trump grouped first (in ladder order) for jjdd. Ordering never
// affects legality.
func SortHand(hand []Card, mode Mode) []Card {
	sorted := make([]Card, len(hand))
	copy(sorted, hand)
	sort.SliceStable(sorted, func(i, j int) bool {
		gi, gj := sortGroup(sorted[i], mode), sortGroup(sorted[j], mode)
		if gi != gj {
			return gi < gj
		}
		if gi == 0 && mode == ModeJJDD {
			return trumpRank(sorted[i], mode) < trumpRank(sorted[j], mode)
		}
		return sorted[i].Rank < sorted[j].Rank
	})
	return sorted
}

func sortGroup(c Card, mode Mode) int {
	if mode == ModeJJDD && IsTrump(c, mode) {
		return 0
	}
	for i, s := range Suits {
		if c.Suit == s {
			return i
		}
	}
	return len(Suits)
}
