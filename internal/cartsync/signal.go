// Package cartsync keeps a client-side cart badge consistent with the cart
// API through optimistic signals and authoritative refreshes.
package cartsync

// Signal is a closed set of badge synchronization messages. Increment and
// Decrement carry optimistic local guesses; Refresh asks the badge to discard
// guesses and re-read the authoritative count.
type Signal interface {
	isSignal()
}

// Increment raises the badge by Magnitude before the server confirms.
type Increment struct {
	Magnitude int
}

// Decrement lowers the badge by Magnitude before the server confirms. The
// badge floors the result at zero.
type Decrement struct {
	Magnitude int
}

// Refresh discards accumulated guesses and re-queries the server count.
type Refresh struct{}

func (Increment) isSignal() {}
func (Decrement) isSignal() {}
func (Refresh) isSignal()   {}
